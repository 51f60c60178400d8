// Package latency 统计行情消息的处理时延与推送间隔。
package latency

import (
	"sort"
	"sync"
)

// Stats 时延统计快照（滚动窗口），单位毫秒
type Stats struct {
	// Count 样本总数（累计，Reset 后归零）
	Count int64 `json:"count"`

	// ProcessP50Ms 从收到消息到状态替换完成的 P50 时延
	ProcessP50Ms float64 `json:"process_p50_ms"`
	// ProcessP90Ms 处理时延 P90
	ProcessP90Ms float64 `json:"process_p90_ms"`
	// ProcessP99Ms 处理时延 P99
	ProcessP99Ms float64 `json:"process_p99_ms"`

	// IntervalP50Ms 相邻两条消息到达间隔的 P50
	IntervalP50Ms float64 `json:"interval_p50_ms"`
	// IntervalP90Ms 到达间隔 P90
	IntervalP90Ms float64 `json:"interval_p90_ms"`
	// IntervalP99Ms 到达间隔 P99
	IntervalP99Ms float64 `json:"interval_p99_ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) quantiles(qs ...float64) []int64 {
	values := make([]int64, len(qs))
	if len(w.buf) == 0 {
		return values
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	n := len(tmp)
	for i, q := range qs {
		idx := int(float64(n-1) * q)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		values[i] = tmp[idx]
	}
	return values
}

// Tracker 时延追踪器
// 由事件循环写入，指标上报 goroutine 读取，内部加锁。
type Tracker struct {
	mu sync.Mutex

	windowSize int
	process    *rollingWindow
	interval   *rollingWindow
	// lastArrivedNs 上一条消息的到达时间（纳秒）
	lastArrivedNs int64
}

// NewTracker 创建时延追踪器
// 参数 windowSize: 滚动窗口大小，用于 P50/P90/P99
func NewTracker(windowSize int) *Tracker {
	return &Tracker{
		windowSize: windowSize,
		process:    newRollingWindow(windowSize),
		interval:   newRollingWindow(windowSize),
	}
}

// Add 记录一条消息
// 参数 arrivedNs: 消息到达时间（纳秒）
// 参数 appliedNs: 状态替换完成时间（纳秒）
func (t *Tracker) Add(arrivedNs, appliedNs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if arrivedNs <= 0 {
		return
	}

	t.process.add(appliedNs - arrivedNs)
	if t.lastArrivedNs > 0 && arrivedNs >= t.lastArrivedNs {
		t.interval.add(arrivedNs - t.lastArrivedNs)
	}
	t.lastArrivedNs = arrivedNs
}

// Reset 清空统计（切换交易对时调用，避免跨订阅计算到达间隔）
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.process = newRollingWindow(t.windowSize)
	t.interval = newRollingWindow(t.windowSize)
	t.lastArrivedNs = 0
}

// Stats 获取统计快照
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.process.quantiles(0.50, 0.90, 0.99)
	iv := t.interval.quantiles(0.50, 0.90, 0.99)

	return Stats{
		Count:         t.process.count,
		ProcessP50Ms:  float64(p[0]) / 1_000_000.0,
		ProcessP90Ms:  float64(p[1]) / 1_000_000.0,
		ProcessP99Ms:  float64(p[2]) / 1_000_000.0,
		IntervalP50Ms: float64(iv[0]) / 1_000_000.0,
		IntervalP90Ms: float64(iv[1]) / 1_000_000.0,
		IntervalP99Ms: float64(iv[2]) / 1_000_000.0,
	}
}
