// Package metadata 负责维护可订阅的交易对目录，并可选地通过交易所元数据校验。
package metadata

import "orderbook-dashboard/internal/core/model"

// ExchangeInfoResponse Binance 现货元数据 API 响应
// API: GET /api/v3/exchangeInfo
type ExchangeInfoResponse struct {
	// Timezone 服务器时区
	Timezone string `json:"timezone"`
	// ServerTime 服务器时间
	ServerTime int64 `json:"serverTime"`
	// Symbols 交易对列表
	Symbols []SpotSymbol `json:"symbols"`
}

// SpotSymbol Binance 现货交易对信息
// 字段映射来自 Binance Spot API 响应
type SpotSymbol struct {
	// Symbol 交易对，如 BTCUSDT
	Symbol string `json:"symbol"`
	// Status 交易对状态: TRADING, BREAK, HALT
	Status string `json:"status"`
	// BaseAsset 标的资产，如 BTC
	BaseAsset string `json:"baseAsset"`
	// QuoteAsset 报价资产，如 USDT
	QuoteAsset string `json:"quoteAsset"`
}

// IsTrading 判断交易对是否处于可交易状态
func (s *SpotSymbol) IsTrading() bool {
	return s.Status == "TRADING"
}

// Catalog 交易对目录
// 启动时构建后只读，可在多个 goroutine 中共享
type Catalog struct {
	// pairs 按配置顺序排列的交易对
	pairs []model.TradingPair
	// index 标准化代码到 pairs 下标
	index map[string]int
	// def 默认交易对
	def model.TradingPair
}
