package spread

import "orderbook-dashboard/internal/core/model"

// HistoryCapacity 价差历史容量
const HistoryCapacity = 60

// History 定长价差历史（FIFO）
// 值语义：Append 返回新的 History，原值不变，便于整体替换状态。
type History struct {
	samples  []model.SpreadSample
	capacity int
}

// NewHistory 创建空历史
// 参数 capacity: 容量，<=0 时使用 HistoryCapacity
func NewHistory(capacity int) History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return History{capacity: capacity}
}

// Append 追加样本，超过容量时淘汰最旧样本
func (h History) Append(s model.SpreadSample) History {
	capacity := h.capacity
	if capacity <= 0 {
		capacity = HistoryCapacity
	}

	keep := h.samples
	if len(keep) >= capacity {
		keep = keep[len(keep)-capacity+1:]
	}

	next := make([]model.SpreadSample, 0, len(keep)+1)
	next = append(next, keep...)
	next = append(next, s)
	return History{samples: next, capacity: capacity}
}

// Samples 返回样本副本，按时间从旧到新
func (h History) Samples() []model.SpreadSample {
	out := make([]model.SpreadSample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Len 样本数
func (h History) Len() int {
	return len(h.samples)
}

// Latest 最新样本
func (h History) Latest() (model.SpreadSample, bool) {
	if len(h.samples) == 0 {
		return model.SpreadSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}
