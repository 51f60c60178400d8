// Package spread 计算价差与买卖量失衡指标，并维护定长价差历史。
package spread

import (
	"math"

	"orderbook-dashboard/internal/core/model"
)

// BestBid 最高买价，买盘为空时为 0
func BestBid(bids []model.PriceLevel) float64 {
	if len(bids) == 0 {
		return 0
	}
	best := bids[0].Price
	for _, l := range bids[1:] {
		best = math.Max(best, l.Price)
	}
	return best
}

// BestAsk 最低卖价，卖盘为空时为 0
func BestAsk(asks []model.PriceLevel) float64 {
	if len(asks) == 0 {
		return 0
	}
	best := asks[0].Price
	for _, l := range asks[1:] {
		best = math.Min(best, l.Price)
	}
	return best
}

// Spread 最优卖价 - 最优买价
// 一侧为空时结果没有意义（可能为负），不做保护
func Spread(bids, asks []model.PriceLevel) float64 {
	return BestAsk(asks) - BestBid(bids)
}

// Imbalance 买卖量失衡 (bidVolume - askVolume) / (bidVolume + askVolume)
// 使用未截断的全部档位；两侧总量为 0 时结果为 NaN，原样交给展示层
func Imbalance(bids, asks []model.PriceLevel) float64 {
	bidVol := model.Volume(bids)
	askVol := model.Volume(asks)
	return (bidVol - askVol) / (bidVol + askVol)
}

// Sample 根据一条消息生成价差样本
// 参数 nowMs: 采样时间（Unix 毫秒）
func Sample(bids, asks []model.PriceLevel, nowMs int64) model.SpreadSample {
	return model.SpreadSample{TimestampMs: nowMs, Spread: Spread(bids, asks)}
}
