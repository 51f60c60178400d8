package book

import (
	"math"
	"testing"

	"orderbook-dashboard/internal/core/model"
)

func levels(pairs ...float64) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.PriceLevel{Price: pairs[i], Amount: pairs[i+1]})
	}
	return out
}

func TestReduce_SortsTruncatesAndAccumulates(t *testing.T) {
	bids := levels(99, 1, 101, 2, 100, 3)
	asks := levels(103, 1, 102, 4, 104, 5)

	snap := Reduce(model.Snapshot{}, bids, asks, Options{Depth: 2})

	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("len(bids)=%d len(asks)=%d, want 2/2", len(snap.Bids), len(snap.Asks))
	}

	wantBids := []model.RankedLevel{
		{PriceLevel: model.PriceLevel{Price: 101, Amount: 2}, Total: 2, Sign: model.ChangeUnchanged},
		{PriceLevel: model.PriceLevel{Price: 100, Amount: 3}, Total: 5, Sign: model.ChangeUnchanged},
	}
	wantAsks := []model.RankedLevel{
		{PriceLevel: model.PriceLevel{Price: 102, Amount: 4}, Total: 4, Sign: model.ChangeUnchanged},
		{PriceLevel: model.PriceLevel{Price: 103, Amount: 1}, Total: 5, Sign: model.ChangeUnchanged},
	}
	for i := range wantBids {
		if snap.Bids[i] != wantBids[i] {
			t.Errorf("bids[%d]=%+v, want %+v", i, snap.Bids[i], wantBids[i])
		}
		if snap.Asks[i] != wantAsks[i] {
			t.Errorf("asks[%d]=%+v, want %+v", i, snap.Asks[i], wantAsks[i])
		}
	}

	// 入参不被修改
	if bids[0].Price != 99 || asks[0].Price != 103 {
		t.Errorf("Reduce 修改了入参: bids=%v asks=%v", bids, asks)
	}
}

func TestReduce_DefaultDepth(t *testing.T) {
	var bids []model.PriceLevel
	for i := 0; i < 20; i++ {
		bids = append(bids, model.PriceLevel{Price: float64(100 - i), Amount: 1})
	}

	snap := Reduce(model.Snapshot{}, bids, nil, Options{})
	if len(snap.Bids) != DefaultTableDepth {
		t.Fatalf("len(bids)=%d, want %d", len(snap.Bids), DefaultTableDepth)
	}
	if len(snap.Asks) != 0 {
		t.Fatalf("len(asks)=%d, want 0", len(snap.Asks))
	}
}

func TestReduce_EmptyInput(t *testing.T) {
	prev := Reduce(model.Snapshot{}, levels(100, 1), levels(101, 1), Options{})
	snap := Reduce(prev, nil, nil, Options{})
	if !snap.IsEmpty() {
		t.Fatalf("空输入应得到空快照, got %+v", snap)
	}
}

func TestReduce_ChangeSignByIndex(t *testing.T) {
	prev := Reduce(model.Snapshot{}, levels(100, 1.0), levels(101, 1.0), Options{})

	tests := []struct {
		name   string
		amount float64
		want   model.ChangeSign
		delta  float64
	}{
		{name: "数量增加", amount: 1.5, want: model.ChangeUp, delta: 0.5},
		{name: "数量减少", amount: 0.5, want: model.ChangeDown, delta: -0.5},
		{name: "数量不变", amount: 1.0, want: model.ChangeUnchanged, delta: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Reduce(prev, levels(100, tt.amount), levels(101, tt.amount), Options{})
			if got := next.Bids[0].Sign; got != tt.want {
				t.Errorf("bids[0].Sign=%s, want %s", got, tt.want)
			}
			if got := next.Asks[0].Sign; got != tt.want {
				t.Errorf("asks[0].Sign=%s, want %s", got, tt.want)
			}
			if got := next.Bids[0].Change; math.Abs(got-tt.delta) > 1e-12 {
				t.Errorf("bids[0].Change=%v, want %v", got, tt.delta)
			}
		})
	}
}

func TestReduce_IndexVersusPriceComparison(t *testing.T) {
	prev := Reduce(model.Snapshot{}, levels(100, 1, 99, 2), nil, Options{})

	// 在最优价前插入新价位 101，原有档位整体下移一行
	bids := levels(101, 5, 100, 1, 99, 2)

	byIndex := Reduce(prev, bids, nil, Options{Mode: ChangeByIndex})
	if byIndex.Bids[0].Sign != model.ChangeUp {
		t.Errorf("按行号: bids[0]=%s, want up（5 vs 1）", byIndex.Bids[0].Sign)
	}
	if byIndex.Bids[1].Sign != model.ChangeDown {
		t.Errorf("按行号: bids[1]=%s, want down（1 vs 2）", byIndex.Bids[1].Sign)
	}
	if byIndex.Bids[2].Sign != model.ChangeUnchanged {
		t.Errorf("按行号: bids[2]=%s, want unchanged（无上一行）", byIndex.Bids[2].Sign)
	}

	byPrice := Reduce(prev, bids, nil, Options{Mode: ChangeByPrice})
	for i, l := range byPrice.Bids {
		if l.Sign != model.ChangeUnchanged {
			t.Errorf("按价格: bids[%d]=%s, want unchanged", i, l.Sign)
		}
	}
}

func TestReduce_NaNPropagates(t *testing.T) {
	bids := []model.PriceLevel{{Price: 100, Amount: math.NaN()}, {Price: 99, Amount: 1}}
	snap := Reduce(model.Snapshot{}, bids, nil, Options{})

	if !math.IsNaN(snap.Bids[0].Total) || !math.IsNaN(snap.Bids[1].Total) {
		t.Fatalf("NaN 数量应传播到累计量: %+v", snap.Bids)
	}

	next := Reduce(snap, bids, nil, Options{})
	if next.Bids[0].Sign != model.ChangeUnchanged {
		t.Errorf("NaN 差值应视为不变, got %s", next.Bids[0].Sign)
	}
}

func TestSort_NaNPriceLast(t *testing.T) {
	in := []model.PriceLevel{{Price: math.NaN(), Amount: 1}, {Price: 1, Amount: 1}, {Price: 2, Amount: 1}}

	b := SortBids(in)
	if b[0].Price != 2 || b[1].Price != 1 || !math.IsNaN(b[2].Price) {
		t.Errorf("SortBids=%v", b)
	}
	a := SortAsks(in)
	if a[0].Price != 1 || a[1].Price != 2 || !math.IsNaN(a[2].Price) {
		t.Errorf("SortAsks=%v", a)
	}
}

func TestChangeMode_Valid(t *testing.T) {
	if !ChangeByIndex.Valid() || !ChangeByPrice.Valid() {
		t.Fatal("内置比对方式应有效")
	}
	if ChangeMode("row").Valid() {
		t.Fatal("未知比对方式不应有效")
	}
}
