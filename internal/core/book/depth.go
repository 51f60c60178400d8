package book

import (
	"slices"

	"orderbook-dashboard/internal/core/model"
)

// DepthChart 生成深度图数据
// 任一侧为空时返回空结果。先排序再截断到 maxDepth（<=0 时使用 DefaultChartDepth），
// 买盘从最优价向外累计后反转，使所有点按价格升序排列。
func DepthChart(bids, asks []model.PriceLevel, maxDepth int) model.DepthChart {
	if len(bids) == 0 || len(asks) == 0 {
		return model.DepthChart{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultChartDepth
	}

	sortedBids := truncate(SortBids(bids), maxDepth)
	sortedAsks := truncate(SortAsks(asks), maxDepth)

	points := make([]model.DepthPoint, 0, len(sortedBids)+len(sortedAsks))
	points = append(points, cumulate(sortedBids, model.SideBid)...)
	slices.Reverse(points)
	points = append(points, cumulate(sortedAsks, model.SideAsk)...)

	return model.DepthChart{
		MidPrice: (sortedBids[0].Price + sortedAsks[0].Price) / 2,
		Points:   points,
	}
}

func cumulate(levels []model.PriceLevel, side model.DepthSide) []model.DepthPoint {
	out := make([]model.DepthPoint, len(levels))
	var total float64
	for i, l := range levels {
		total += l.Amount
		out[i] = model.DepthPoint{Price: l.Price, Total: total, Side: side}
	}
	return out
}
