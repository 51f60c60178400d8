// Package binance 定义 Binance 现货行情消息类型。
package binance

// PartialDepth Binance 有限档深度推送（<symbol>@depth20@100ms）
// 字段映射：
// - lastUpdateId: 序列号 -> DepthMessage.LastUpdateID
// - bids: 买盘
// - asks: 卖盘
//
// bids/asks 可能是 [[price, qty], ...] 形式的二维字符串数组，
// 也可能是 {"price": "qty", ...} 形式的对象；数组元素也可能是 {"price": "...", "amount": "..."}。
// 解析由 Parser 基于 gjson 完成，本结构仅用于测试中构造消息。
type PartialDepth struct {
	// LastUpdateID 序列号
	LastUpdateID int64 `json:"lastUpdateId"`
	// Bids 买盘档位（价格、数量）
	Bids [][]string `json:"bids"`
	// Asks 卖盘档位（价格、数量）
	Asks [][]string `json:"asks"`
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// DisconnectCount 连接意外中断次数（不会自动重连）
	DisconnectCount int64 `json:"disconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// DroppedCount 因通道满被丢弃的消息数
	DroppedCount int64 `json:"dropped_count"`
	// UpdatesPerSec 每秒更新次数
	UpdatesPerSec float64 `json:"updates_per_sec"`
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
	// Connected 当前是否持有连接
	Connected bool `json:"connected"`
}
