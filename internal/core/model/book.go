// Package model 定义看板中使用的核心数据结构。
// 包含价格档位、订单簿快照、价差样本和交易对等类型。
package model

// PriceLevel 订单簿价格档位
// 由一条行情消息解析而来，解析后不再修改
type PriceLevel struct {
	// Price 价格
	Price float64
	// Amount 该价格上的挂单数量
	Amount float64
}

// ChangeSign 档位数量相对上一快照的变化方向
type ChangeSign string

const (
	// ChangeUp 数量增加
	ChangeUp ChangeSign = "up"
	// ChangeDown 数量减少
	ChangeDown ChangeSign = "down"
	// ChangeUnchanged 数量不变，或上一快照中没有可比较的档位
	ChangeUnchanged ChangeSign = "unchanged"
)

// SignOf 根据数量差值得到变化方向
// NaN 差值视为不变
func SignOf(delta float64) ChangeSign {
	switch {
	case delta > 0:
		return ChangeUp
	case delta < 0:
		return ChangeDown
	default:
		return ChangeUnchanged
	}
}

// RankedLevel 快照中的一行
type RankedLevel struct {
	PriceLevel
	// Total 从最优价向外累计到本档（含）的数量
	Total float64
	// Change 本档数量减去上一快照对应档位的数量；无对应档位时为 0
	Change float64
	// Sign 变化方向
	Sign ChangeSign
}

// Snapshot 订单簿快照
// Bids 按价格降序，Asks 按价格升序，两侧均已截断到配置深度。
// 每条消息整体替换，不做原地修改。
type Snapshot struct {
	Bids []RankedLevel
	Asks []RankedLevel
}

// IsEmpty 两侧是否都没有档位
func (s Snapshot) IsEmpty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}

// DepthMessage 解析后的深度消息
// Bids/Asks 保持消息中的原始顺序，未截断
type DepthMessage struct {
	// Bids 买盘档位
	Bids []PriceLevel
	// Asks 卖盘档位
	Asks []PriceLevel
	// LastUpdateID 交易所序列号（消息中不存在时为 0）
	LastUpdateID int64
	// ArrivedAtUnixNs 本机收到消息的时间戳（纳秒）
	ArrivedAtUnixNs int64
}

// Volume 汇总一侧所有档位的数量
func Volume(levels []PriceLevel) float64 {
	var sum float64
	for _, l := range levels {
		sum += l.Amount
	}
	return sum
}

// SpreadSample 价差历史中的一个样本
type SpreadSample struct {
	// TimestampMs 采样时间（Unix 毫秒）
	TimestampMs int64
	// Spread 最优卖价 - 最优买价
	Spread float64
}

// DepthSide 深度图数据点所属方向
type DepthSide string

const (
	// SideBid 买盘
	SideBid DepthSide = "bid"
	// SideAsk 卖盘
	SideAsk DepthSide = "ask"
)

// DepthPoint 深度图上的一个点
type DepthPoint struct {
	Price float64
	Total float64
	Side  DepthSide
}

// DepthChart 深度图数据
// Points 按价格从低到高排列：先是买盘（累计量递减），后是卖盘（累计量递增）
type DepthChart struct {
	// MidPrice (最高买价 + 最低卖价) / 2
	MidPrice float64
	Points   []DepthPoint
}

// IsEmpty 是否没有数据点
func (d DepthChart) IsEmpty() bool {
	return len(d.Points) == 0
}
