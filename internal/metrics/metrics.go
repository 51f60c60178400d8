// Package metrics 定义看板的 Prometheus 监控指标。
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// 行情消息
	MessagesReceived *prometheus.CounterVec
	ParseErrors      *prometheus.CounterVec
	DroppedMessages  *prometheus.CounterVec
	Disconnects      *prometheus.CounterVec
	PairSwitches     prometheus.Counter

	// 派生指标
	BestBid   *prometheus.GaugeVec
	BestAsk   *prometheus.GaugeVec
	Spread    *prometheus.GaugeVec
	Imbalance *prometheus.GaugeVec
	BookDepth *prometheus.GaugeVec

	// 处理时延
	ProcessLatency *prometheus.HistogramVec

	// 对外服务
	WSClients        prometheus.Gauge
	PublishFailures  *prometheus.CounterVec
	Uptime           prometheus.GaugeFunc
	registry         *prometheus.Registry
	startTime        time.Time
}

// NewMetrics 创建监控指标
// 每个实例使用独立的 Registry，便于测试中重复创建
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
	}

	m.MessagesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of depth messages applied",
		},
		[]string{"symbol"},
	)

	m.ParseErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of malformed messages dropped",
		},
		[]string{"symbol"},
	)

	m.DroppedMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Total number of messages dropped because the event queue was full",
		},
		[]string{"symbol"},
	)

	m.Disconnects = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_disconnects_total",
			Help:      "Total number of stream connections that ended unexpectedly",
		},
		[]string{"symbol"},
	)

	m.PairSwitches = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pair_switches_total",
			Help:      "Total number of trading pair selections",
		},
	)

	m.BestBid = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_bid",
			Help:      "Highest bid price of the latest message",
		},
		[]string{"symbol"},
	)

	m.BestAsk = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_ask",
			Help:      "Lowest ask price of the latest message",
		},
		[]string{"symbol"},
	)

	m.Spread = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread",
			Help:      "Best ask minus best bid",
		},
		[]string{"symbol"},
	)

	m.Imbalance = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume_imbalance",
			Help:      "(bid volume - ask volume) / (bid volume + ask volume)",
		},
		[]string{"symbol"},
	)

	m.BookDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Number of levels in the rendered snapshot",
		},
		[]string{"symbol", "side"},
	)

	m.ProcessLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_latency_microseconds",
			Help:      "Time from message arrival to state swap in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"symbol"},
	)

	m.WSClients = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Number of connected dashboard clients",
		},
	)

	m.PublishFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of failed fan-out publishes",
		},
		[]string{"sink"},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordMessage 记录一条已应用的消息
func (m *Metrics) RecordMessage(symbol string, bestBid, bestAsk, imbalance float64, bidLevels, askLevels int, latency time.Duration) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(symbol).Inc()
	m.BestBid.WithLabelValues(symbol).Set(bestBid)
	m.BestAsk.WithLabelValues(symbol).Set(bestAsk)
	m.Spread.WithLabelValues(symbol).Set(bestAsk - bestBid)
	m.Imbalance.WithLabelValues(symbol).Set(imbalance)
	m.BookDepth.WithLabelValues(symbol, "bid").Set(float64(bidLevels))
	m.BookDepth.WithLabelValues(symbol, "ask").Set(float64(askLevels))
	m.ProcessLatency.WithLabelValues(symbol).Observe(float64(latency.Microseconds()))
}

// ResetPair 清除指定交易对的派生指标（切换交易对时调用）
func (m *Metrics) ResetPair(symbol string) {
	if m == nil {
		return
	}
	m.PairSwitches.Inc()
	for _, g := range []*prometheus.GaugeVec{m.BestBid, m.BestAsk, m.Spread, m.Imbalance} {
		g.DeleteLabelValues(symbol)
	}
	m.BookDepth.DeleteLabelValues(symbol, "bid")
	m.BookDepth.DeleteLabelValues(symbol, "ask")
}

// ParseError 记录一条解析失败的消息
func (m *Metrics) ParseError(symbol string) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues(symbol).Inc()
}

// Dropped 记录一条因队列满被丢弃的消息
func (m *Metrics) Dropped(symbol string) {
	if m == nil {
		return
	}
	m.DroppedMessages.WithLabelValues(symbol).Inc()
}

// Disconnected 记录一次连接中断
func (m *Metrics) Disconnected(symbol string) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(symbol).Inc()
}

// SetClients 设置在线客户端数
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// PublishFailed 记录一次分发失败
func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(sink).Inc()
}
