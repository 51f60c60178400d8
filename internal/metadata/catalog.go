// Package metadata 负责维护可订阅的交易对目录，并可选地通过交易所元数据校验。
package metadata

import (
	"context"
	"fmt"
	"strings"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/model"
)

// BuildCatalog 构建交易对目录
// 交易对来自配置中的静态列表；配置了 metadata.exchange_info_url 时，
// 会从 Binance 获取现货元数据，并要求每个交易对都存在且处于 TRADING 状态。
// 参数 ctx: 上下文
// 参数 cfg: 配置
// 参数 f: 元数据获取器，未配置校验地址时可为 nil
func BuildCatalog(ctx context.Context, cfg *config.Config, f Fetcher) (*Catalog, error) {
	pairs := make([]model.TradingPair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pairs = append(pairs, model.TradingPair{Symbol: normalizeSymbol(p.Symbol), DisplayName: p.DisplayName})
	}

	if cfg.Metadata.ExchangeInfoURL != "" && f != nil {
		symbols, err := f.FetchSymbols(ctx, cfg.Metadata.ExchangeInfoURL)
		if err != nil {
			return nil, fmt.Errorf("获取 Binance 元数据失败: %w", err)
		}
		if err := verifyPairs(pairs, buildSpotIndex(symbols)); err != nil {
			return nil, err
		}
	}

	return NewCatalog(pairs, cfg.DefaultPair)
}

// NewCatalog 由交易对列表创建目录
// 参数 pairs: 交易对列表，不能为空且不能重复
// 参数 defaultSymbol: 默认交易对代码，为空时取第一项
func NewCatalog(pairs []model.TradingPair, defaultSymbol string) (*Catalog, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("交易对列表不能为空")
	}

	c := &Catalog{
		pairs: make([]model.TradingPair, 0, len(pairs)),
		index: make(map[string]int, len(pairs)),
	}
	for _, p := range pairs {
		canon := normalizeSymbol(p.Symbol)
		if canon == "" {
			return nil, fmt.Errorf("交易对代码不能为空")
		}
		if _, dup := c.index[canon]; dup {
			return nil, fmt.Errorf("交易对重复: %s", canon)
		}
		p.Symbol = canon
		if p.DisplayName == "" {
			p.DisplayName = canon
		}
		c.index[canon] = len(c.pairs)
		c.pairs = append(c.pairs, p)
	}

	c.def = c.pairs[0]
	if defaultSymbol != "" {
		p, ok := c.Lookup(defaultSymbol)
		if !ok {
			return nil, fmt.Errorf("默认交易对 '%s' 不在列表中", defaultSymbol)
		}
		c.def = p
	}
	return c, nil
}

// Lookup 按代码查找交易对
// 接受 BTCUSDT、btcusdt、BTC-USDT、BTC/USDT 等写法
func (c *Catalog) Lookup(symbol string) (model.TradingPair, bool) {
	i, ok := c.index[normalizeSymbol(symbol)]
	if !ok {
		return model.TradingPair{}, false
	}
	return c.pairs[i], true
}

// Pairs 返回交易对列表副本
func (c *Catalog) Pairs() []model.TradingPair {
	out := make([]model.TradingPair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Default 返回默认交易对
func (c *Catalog) Default() model.TradingPair {
	return c.def
}

// buildSpotIndex 构建 Binance 现货交易对索引
// key: 标准化的交易对（如 BTCUSDT）
func buildSpotIndex(symbols []SpotSymbol) map[string]*SpotSymbol {
	index := make(map[string]*SpotSymbol, len(symbols))
	for i := range symbols {
		sym := &symbols[i]
		index[normalizeSymbol(sym.Symbol)] = sym
	}
	return index
}

func verifyPairs(pairs []model.TradingPair, index map[string]*SpotSymbol) error {
	var missing []string
	for _, p := range pairs {
		sym, ok := index[p.Symbol]
		if !ok {
			missing = append(missing, p.Symbol+"(不存在)")
			continue
		}
		if !sym.IsTrading() {
			missing = append(missing, fmt.Sprintf("%s(%s)", p.Symbol, sym.Status))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("Binance 未找到可交易的交易对: %s", strings.Join(missing, ", "))
	}
	return nil
}

// normalizeSymbol 标准化交易对格式
// 移除分隔符，转为大写
// 例如: BTC-USDT -> BTCUSDT, btc_usdt -> BTCUSDT
func normalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	return strings.ToUpper(s)
}
