package model

// TradingPair 交易对
// 来自配置中的静态列表；切换交易对会替换整个订阅并重置所有派生状态
type TradingPair struct {
	// Symbol 交易所代码，如 BTCUSDT
	Symbol string
	// DisplayName 展示名称，如 BTC-USD
	DisplayName string
}

// IsZero 是否为空交易对
func (p TradingPair) IsZero() bool {
	return p.Symbol == ""
}

// DefaultPairs 默认交易对列表
func DefaultPairs() []TradingPair {
	return []TradingPair{
		{Symbol: "BTCUSDT", DisplayName: "BTC-USD"},
		{Symbol: "ETHUSDT", DisplayName: "ETH-USD"},
		{Symbol: "XRPUSDT", DisplayName: "XRP-USD"},
	}
}
