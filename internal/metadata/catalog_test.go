// Package metadata 元数据模块测试
package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/model"
)

// TestNormalizeSymbol_Consistency 不同写法的同一交易对应标准化为相同代码
func TestNormalizeSymbol_Consistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	coins := []string{"BTC", "ETH", "SOL", "DOGE", "XRP", "ADA", "DOT", "LINK", "UNI", "USDT"}

	properties.Property("分隔符与大小写不影响标准化结果", prop.ForAll(
		func(baseIdx int, quoteIdx int) bool {
			base := coins[baseIdx%len(coins)]
			quote := coins[quoteIdx%len(coins)]

			want := normalizeSymbol(base + quote)
			for _, in := range []string{
				base + "-" + quote,
				base + "_" + quote,
				base + "/" + quote,
				strings.ToLower(base) + "-" + quote,
				" " + strings.ToLower(base+quote) + " ",
			} {
				if normalizeSymbol(in) != want {
					return false
				}
			}
			return normalizeSymbol(want) == want
		},
		gen.IntRange(0, 9),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(model.DefaultPairs(), "eth-usdt")
	if err != nil {
		t.Fatalf("NewCatalog 失败: %v", err)
	}

	if got := c.Default().Symbol; got != "ETHUSDT" {
		t.Errorf("Default()=%s, want ETHUSDT", got)
	}
	if got := len(c.Pairs()); got != 3 {
		t.Errorf("len(Pairs())=%d, want 3", got)
	}

	p, ok := c.Lookup("btc/usdt")
	if !ok || p.DisplayName != "BTC-USD" {
		t.Errorf("Lookup(btc/usdt)=%+v,%v", p, ok)
	}
	if _, ok := c.Lookup("DOGEUSDT"); ok {
		t.Error("未配置的交易对不应被找到")
	}

	// Pairs 返回副本
	pairs := c.Pairs()
	pairs[0].Symbol = "CHANGED"
	if c.Pairs()[0].Symbol != "BTCUSDT" {
		t.Error("修改 Pairs() 返回值不应影响目录")
	}
}

func TestNewCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		pairs []model.TradingPair
		def   string
	}{
		{name: "空列表", pairs: nil},
		{name: "重复", pairs: []model.TradingPair{{Symbol: "BTCUSDT"}, {Symbol: "btc-usdt"}}},
		{name: "空代码", pairs: []model.TradingPair{{Symbol: " "}}},
		{name: "默认不在列表中", pairs: model.DefaultPairs(), def: "DOGEUSDT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.pairs, tt.def); err == nil {
				t.Error("期望错误但得到 nil")
			}
		})
	}
}

type fakeFetcher struct {
	symbols []SpotSymbol
	err     error
	calls   int
}

func (f *fakeFetcher) FetchSymbols(_ context.Context, _ string) ([]SpotSymbol, error) {
	f.calls++
	return f.symbols, f.err
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Pairs: []config.PairConfig{
			{Symbol: "BTCUSDT", DisplayName: "BTC-USD"},
			{Symbol: "ETHUSDT", DisplayName: "ETH-USD"},
		},
		Metadata: config.MetadataConfig{ExchangeInfoURL: url, TimeoutMs: 1000},
	}
}

func TestBuildCatalog_Verification(t *testing.T) {
	ctx := context.Background()

	t.Run("未配置地址时跳过校验", func(t *testing.T) {
		f := &fakeFetcher{err: errors.New("不应被调用")}
		c, err := BuildCatalog(ctx, testConfig(""), f)
		if err != nil {
			t.Fatalf("BuildCatalog 失败: %v", err)
		}
		if f.calls != 0 {
			t.Errorf("calls=%d, want 0", f.calls)
		}
		if c.Default().Symbol != "BTCUSDT" {
			t.Errorf("Default()=%s, want BTCUSDT", c.Default().Symbol)
		}
	})

	t.Run("全部可交易", func(t *testing.T) {
		f := &fakeFetcher{symbols: []SpotSymbol{
			{Symbol: "BTCUSDT", Status: "TRADING"},
			{Symbol: "ETHUSDT", Status: "TRADING"},
		}}
		if _, err := BuildCatalog(ctx, testConfig("http://example"), f); err != nil {
			t.Fatalf("BuildCatalog 失败: %v", err)
		}
	})

	t.Run("交易对暂停", func(t *testing.T) {
		f := &fakeFetcher{symbols: []SpotSymbol{
			{Symbol: "BTCUSDT", Status: "TRADING"},
			{Symbol: "ETHUSDT", Status: "BREAK"},
		}}
		_, err := BuildCatalog(ctx, testConfig("http://example"), f)
		if err == nil || !strings.Contains(err.Error(), "ETHUSDT(BREAK)") {
			t.Fatalf("err=%v, want ETHUSDT(BREAK)", err)
		}
	})

	t.Run("交易对不存在", func(t *testing.T) {
		f := &fakeFetcher{symbols: []SpotSymbol{{Symbol: "BTCUSDT", Status: "TRADING"}}}
		if _, err := BuildCatalog(ctx, testConfig("http://example"), f); err == nil {
			t.Fatal("期望错误但得到 nil")
		}
	})

	t.Run("获取失败", func(t *testing.T) {
		f := &fakeFetcher{err: errors.New("timeout")}
		if _, err := BuildCatalog(ctx, testConfig("http://example"), f); err == nil {
			t.Fatal("期望错误但得到 nil")
		}
	})
}

func TestHTTPFetcher_FetchSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"timezone":"UTC","serverTime":1,"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}]}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(2000)

	symbols, err := f.FetchSymbols(context.Background(), srv.URL+"/api/v3/exchangeInfo")
	if err != nil {
		t.Fatalf("FetchSymbols 失败: %v", err)
	}
	if len(symbols) != 1 || symbols[0].BaseAsset != "BTC" || !symbols[0].IsTrading() {
		t.Errorf("symbols=%+v", symbols)
	}

	if _, err := f.FetchSymbols(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("404 应返回错误")
	}
}
