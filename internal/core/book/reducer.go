// Package book 实现订单簿快照归约。
// 每条深度消息经过：排序 → 截断 → 累计 → 与上一快照比对，生成新的 Snapshot。
// 所有函数均为纯函数，不修改入参。
package book

import (
	"cmp"
	"math"
	"slices"

	"orderbook-dashboard/internal/core/model"
)

const (
	// DefaultTableDepth 表格视图默认深度
	DefaultTableDepth = 10
	// DefaultChartDepth 深度图默认深度
	DefaultChartDepth = 15
)

// ChangeMode 变化标记的比对方式
type ChangeMode string

const (
	// ChangeByIndex 按行号比对：第 i 行与上一快照第 i 行比较数量。
	// 表格中行的身份由位置决定；有新价位插入时变化会被记到错误的行上。
	ChangeByIndex ChangeMode = "index"
	// ChangeByPrice 按价格比对：与上一快照中相同价格的档位比较数量，新价位记为不变。
	ChangeByPrice ChangeMode = "price"
)

// Valid 是否为已知的比对方式
func (m ChangeMode) Valid() bool {
	return m == ChangeByIndex || m == ChangeByPrice
}

// Options 归约参数
type Options struct {
	// Depth 每侧保留的最大档位数，<=0 时使用 DefaultTableDepth
	Depth int
	// Mode 变化标记比对方式，空值为 ChangeByIndex
	Mode ChangeMode
}

func (o Options) depth() int {
	if o.Depth <= 0 {
		return DefaultTableDepth
	}
	return o.Depth
}

func (o Options) mode() ChangeMode {
	if o.Mode == "" {
		return ChangeByIndex
	}
	return o.Mode
}

// Reduce 由上一快照与新解析的买卖盘生成下一快照
// 参数 prev: 上一快照（首条消息时为零值）
// 参数 bids, asks: 本条消息解析出的全部档位（顺序任意）
// 参数 opts: 深度与比对方式
func Reduce(prev model.Snapshot, bids, asks []model.PriceLevel, opts Options) model.Snapshot {
	depth := opts.depth()
	mode := opts.mode()

	return model.Snapshot{
		Bids: rank(prev.Bids, truncate(SortBids(bids), depth), mode),
		Asks: rank(prev.Asks, truncate(SortAsks(asks), depth), mode),
	}
}

// SortBids 返回按价格降序排列的买盘副本
// NaN 价格排在最后，保证有效价位始终在前
func SortBids(levels []model.PriceLevel) []model.PriceLevel {
	out := slices.Clone(levels)
	slices.SortStableFunc(out, func(a, b model.PriceLevel) int {
		return comparePrice(a.Price, b.Price, true)
	})
	return out
}

// SortAsks 返回按价格升序排列的卖盘副本
// NaN 价格排在最后
func SortAsks(levels []model.PriceLevel) []model.PriceLevel {
	out := slices.Clone(levels)
	slices.SortStableFunc(out, func(a, b model.PriceLevel) int {
		return comparePrice(a.Price, b.Price, false)
	})
	return out
}

// comparePrice 按价格比较，desc 为真时降序；NaN 无论方向都排在末尾
func comparePrice(a, b float64, desc bool) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}

	c := cmp.Compare(a, b)
	if desc {
		return -c
	}
	return c
}

func truncate(levels []model.PriceLevel, depth int) []model.PriceLevel {
	if len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

// rank 计算累计量与变化标记
// levels 必须已按最优价在前排序
func rank(prev []model.RankedLevel, levels []model.PriceLevel, mode ChangeMode) []model.RankedLevel {
	if len(levels) == 0 {
		return nil
	}

	var prevByPrice map[float64]float64
	if mode == ChangeByPrice {
		prevByPrice = make(map[float64]float64, len(prev))
		for _, p := range prev {
			prevByPrice[p.Price] = p.Amount
		}
	}

	out := make([]model.RankedLevel, len(levels))
	var total float64
	for i, l := range levels {
		total += l.Amount

		var change float64
		switch mode {
		case ChangeByPrice:
			if amt, ok := prevByPrice[l.Price]; ok {
				change = l.Amount - amt
			}
		default:
			if i < len(prev) {
				change = l.Amount - prev[i].Amount
			}
		}

		out[i] = model.RankedLevel{
			PriceLevel: l,
			Total:      total,
			Change:     change,
			Sign:       model.SignOf(change),
		}
	}
	return out
}
