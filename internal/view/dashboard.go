// Package view 将看板状态转换为展示层使用的 JSON 结构。
// 数值同时以 JSON 数字和格式化字符串输出；NaN/Inf 在数字字段中输出为 null，
// 在字符串字段中输出为 "NaN"，与浏览器端 toFixed 的表现一致。
package view

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/util/fastparse"
)

const (
	// PricePlaces 价格小数位
	PricePlaces = 2
	// AmountPlaces 数量与累计量小数位
	AmountPlaces = 5
	// ImbalancePlaces 失衡值小数位
	ImbalancePlaces = 4
)

// Float 可安全序列化的浮点数，非有限值输出为 null
type Float float64

// MarshalJSON 实现 json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if !fastparse.IsFinite(v) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
}

// Level 订单簿表格中的一行
type Level struct {
	Price      Float  `json:"price"`
	Amount     Float  `json:"amount"`
	Total      Float  `json:"total"`
	Change     Float  `json:"change"`
	Sign       string `json:"sign"`
	PriceText  string `json:"price_text"`
	AmountText string `json:"amount_text"`
	TotalText  string `json:"total_text"`
}

// SpreadPoint 价差历史中的一个样本
type SpreadPoint struct {
	TimestampMs int64  `json:"ts_ms"`
	Spread      Float  `json:"spread"`
	SpreadText  string `json:"spread_text"`
}

// DepthPoint 深度图中的一个点
type DepthPoint struct {
	Price     Float  `json:"price"`
	Total     Float  `json:"total"`
	Side      string `json:"side"`
	PriceText string `json:"price_text"`
	TotalText string `json:"total_text"`
}

// Depth 深度图
type Depth struct {
	MidPrice     Float        `json:"mid_price"`
	MidPriceText string       `json:"mid_price_text"`
	Points       []DepthPoint `json:"points"`
}

// Dashboard 看板视图
type Dashboard struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
	// Ready 为 false 时展示层应显示加载中
	Ready bool    `json:"ready"`
	Bids  []Level `json:"bids"`
	Asks  []Level `json:"asks"`

	BestBid    Float  `json:"best_bid"`
	BestAsk    Float  `json:"best_ask"`
	Spread     Float  `json:"spread"`
	SpreadText string `json:"spread_text"`

	History []SpreadPoint `json:"spread_history"`

	Imbalance     Float  `json:"imbalance"`
	ImbalanceText string `json:"imbalance_text"`
	// ImbalancePercent 失衡条宽度百分比：(imbalance + 1) * 50
	ImbalancePercent Float `json:"imbalance_percent"`
	// Pressure buy / sell / neutral
	Pressure string `json:"pressure"`

	Depth Depth `json:"depth"`

	LastUpdateID    int64 `json:"last_update_id"`
	LastMessageAtMs int64 `json:"last_message_at_ms"`
	// AgeMs 最后一条消息距今时间；尚无消息时为 -1
	AgeMs    int64 `json:"age_ms"`
	Messages int64 `json:"messages"`
}

// FromState 由看板状态构建视图
// 参数 st: 看板状态，不可为 nil
// 参数 nowMs: 当前时间（Unix 毫秒），用于计算数据陈旧程度
func FromState(st *store.State, nowMs int64) Dashboard {
	d := Dashboard{
		Symbol:           st.Pair.Symbol,
		DisplayName:      st.Pair.DisplayName,
		Ready:            st.Ready,
		Bids:             levels(st.Snapshot.Bids),
		Asks:             levels(st.Snapshot.Asks),
		BestBid:          Float(st.BestBid),
		BestAsk:          Float(st.BestAsk),
		History:          history(st.History.Samples()),
		Imbalance:        Float(st.Imbalance),
		ImbalanceText:    FormatFixed(st.Imbalance, ImbalancePlaces),
		ImbalancePercent: Float((st.Imbalance + 1) * 50),
		Pressure:         pressure(st.Imbalance),
		Depth:            depth(st.Depth),
		LastUpdateID:     st.LastUpdateID,
		LastMessageAtMs:  st.LastMessageAtMs,
		AgeMs:            -1,
		Messages:         st.Messages,
	}

	if spread, ok := st.Spread(); ok {
		d.Spread = Float(spread)
		d.SpreadText = FormatFixed(spread, PricePlaces)
	} else {
		d.Spread = Float(math.NaN())
		d.SpreadText = "-"
	}

	if st.LastMessageAtMs > 0 {
		d.AgeMs = max(nowMs-st.LastMessageAtMs, 0)
	}
	return d
}

// FormatFixed 按固定小数位格式化，非有限值输出 "NaN"
func FormatFixed(v float64, places int32) string {
	if !fastparse.IsFinite(v) {
		return "NaN"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func levels(rows []model.RankedLevel) []Level {
	out := make([]Level, 0, len(rows))
	for _, r := range rows {
		out = append(out, Level{
			Price:      Float(r.Price),
			Amount:     Float(r.Amount),
			Total:      Float(r.Total),
			Change:     Float(r.Change),
			Sign:       string(r.Sign),
			PriceText:  FormatFixed(r.Price, PricePlaces),
			AmountText: FormatFixed(r.Amount, AmountPlaces),
			TotalText:  FormatFixed(r.Total, AmountPlaces),
		})
	}
	return out
}

func history(samples []model.SpreadSample) []SpreadPoint {
	out := make([]SpreadPoint, 0, len(samples))
	for _, s := range samples {
		out = append(out, SpreadPoint{
			TimestampMs: s.TimestampMs,
			Spread:      Float(s.Spread),
			SpreadText:  FormatFixed(s.Spread, PricePlaces),
		})
	}
	return out
}

func depth(chart model.DepthChart) Depth {
	d := Depth{
		MidPrice:     Float(chart.MidPrice),
		MidPriceText: FormatFixed(chart.MidPrice, PricePlaces),
		Points:       make([]DepthPoint, 0, len(chart.Points)),
	}
	if chart.IsEmpty() {
		d.MidPriceText = "-"
	}
	for _, p := range chart.Points {
		d.Points = append(d.Points, DepthPoint{
			Price:     Float(p.Price),
			Total:     Float(p.Total),
			Side:      string(p.Side),
			PriceText: FormatFixed(p.Price, PricePlaces),
			TotalText: FormatFixed(p.Total, AmountPlaces),
		})
	}
	return d
}

func pressure(imbalance float64) string {
	switch {
	case imbalance > 0:
		return "buy"
	case imbalance < 0:
		return "sell"
	default:
		// 含 NaN
		return "neutral"
	}
}
