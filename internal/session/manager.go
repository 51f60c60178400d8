// Package session 管理行情订阅的生命周期。
// 任意时刻只持有一个订阅；切换交易对时关闭旧订阅、重置状态并标记未就绪，
// 所有消息与切换请求都在同一个事件循环中串行处理。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/exchange/binance"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/stats/latency"
	"orderbook-dashboard/internal/util/backoff"
	"orderbook-dashboard/internal/util/timeutil"
)

var (
	// ErrUnknownPair 交易对不在目录中
	ErrUnknownPair = errors.New("未知交易对")
	// ErrStopped 事件循环已退出
	ErrStopped = errors.New("订阅管理器已停止")
)

// Stream 单个交易对的行情流
type Stream interface {
	// Connect 建立连接
	Connect(ctx context.Context) error
	// Run 读取消息直到连接中断或 ctx 取消，返回前关闭 Messages 通道
	Run(ctx context.Context)
	// Messages 解析后的深度消息
	Messages() <-chan *model.DepthMessage
	// Metrics 连接指标
	Metrics() binance.ConnectionMetrics
	// Close 关闭连接
	Close() error
}

// StreamFactory 为交易对创建行情流
type StreamFactory func(pair model.TradingPair) Stream

// Sink 状态下游，如 WebSocket 推送或消息队列
// Publish 在事件循环中同步调用，实现不得阻塞
type Sink interface {
	Publish(st *store.State)
}

// Catalog 交易对查找
type Catalog interface {
	Lookup(symbol string) (model.TradingPair, bool)
}

// Options 管理器参数
type Options struct {
	// State 状态推导参数
	State store.Options
	// DialAttempts 建立订阅时的最大拨号次数
	DialAttempts int
	// Backoff 拨号重试退避，为 nil 时使用默认值
	Backoff *backoff.Backoff
}

// Stats 订阅统计
type Stats struct {
	// Symbol 当前交易对
	Symbol string `json:"symbol"`
	// Generation 订阅代数，每次切换加一
	Generation uint64 `json:"generation"`
	// Active 是否仍在接收消息
	Active bool `json:"active"`
	// Connection 当前连接指标
	Connection binance.ConnectionMetrics `json:"connection"`
	// Latency 处理时延统计
	Latency latency.Stats `json:"latency"`
}

type switchRequest struct {
	pair  model.TradingPair
	reply chan error
}

// Manager 订阅管理器
type Manager struct {
	factory StreamFactory
	catalog Catalog
	store   *store.Store
	opts    Options
	tracker *latency.Tracker
	prom    *metrics.Metrics
	logger  *zap.Logger
	sinks   []Sink

	requests chan switchRequest
	done     chan struct{}

	// 以下字段仅由事件循环写入，mu 保护 Stats 的并发读取
	mu         sync.Mutex
	active     Stream
	cancelRun  context.CancelFunc
	msgCh      <-chan *model.DepthMessage
	generation uint64
}

// NewManager 创建订阅管理器
// 参数 factory: 行情流工厂
// 参数 catalog: 交易对目录
// 参数 st: 状态持有者
// 参数 opts: 管理器参数
// 参数 prom: Prometheus 指标，可为 nil
// 参数 logger: 日志记录器
// 参数 sinks: 状态下游
func NewManager(factory StreamFactory, catalog Catalog, st *store.Store, opts Options, prom *metrics.Metrics, logger *zap.Logger, sinks ...Sink) *Manager {
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewDefault()
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = 1
	}
	return &Manager{
		factory:  factory,
		catalog:  catalog,
		store:    st,
		opts:     opts,
		tracker:  latency.NewTracker(10000),
		prom:     prom,
		logger:   logger.Named("session"),
		sinks:    sinks,
		requests: make(chan switchRequest),
		done:     make(chan struct{}),
	}
}

// Run 启动事件循环，订阅初始交易对
// 阻塞直到 ctx 取消；初始订阅失败不会退出，状态保持未就绪，可通过 Switch 重试
func (m *Manager) Run(ctx context.Context, initial model.TradingPair) error {
	defer close(m.done)

	if err := m.switchTo(ctx, initial); err != nil {
		m.logger.Error("初始订阅失败", zap.String("symbol", initial.Symbol), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			if err := m.closeActive(); err != nil {
				m.logger.Warn("关闭订阅失败", zap.Error(err))
			}
			return nil

		case req := <-m.requests:
			req.reply <- m.switchTo(ctx, req.pair)

		case msg, ok := <-m.msgCh:
			if !ok {
				m.markStale()
				continue
			}
			m.handle(msg)
		}
	}
}

// Switch 切换到指定交易对
// 参数 symbol: 交易对代码，接受 BTCUSDT、BTC-USDT 等写法
func (m *Manager) Switch(ctx context.Context, symbol string) (model.TradingPair, error) {
	pair, ok := m.catalog.Lookup(symbol)
	if !ok {
		return model.TradingPair{}, fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}

	req := switchRequest{pair: pair, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return pair, ErrStopped
	case <-ctx.Done():
		return pair, ctx.Err()
	}

	select {
	case err := <-req.reply:
		return pair, err
	case <-ctx.Done():
		return pair, ctx.Err()
	}
}

// State 获取当前状态
func (m *Manager) State() *store.State {
	return m.store.Load()
}

// Stats 获取订阅统计
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Symbol:     m.store.Load().Pair.Symbol,
		Generation: m.generation,
		Active:     m.msgCh != nil,
		Latency:    m.tracker.Stats(),
	}
	if m.active != nil {
		s.Connection = m.active.Metrics()
	}
	return s
}

// switchTo 关闭旧订阅、重置状态并建立新订阅
// 旧订阅的消息通道随之被替换，之后到达的旧消息不会被应用
func (m *Manager) switchTo(ctx context.Context, pair model.TradingPair) error {
	prev := m.store.Load().Pair

	var errs error
	errs = multierr.Append(errs, m.closeActive())

	st := m.store.Reset(pair)
	m.tracker.Reset()
	if !prev.IsZero() && prev.Symbol != pair.Symbol {
		m.prom.ResetPair(prev.Symbol)
	}
	m.publish(st)

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	stream := m.factory(pair)
	if err := m.opts.Backoff.Retry(ctx, m.opts.DialAttempts, stream.Connect); err != nil {
		_ = stream.Close()
		errs = multierr.Append(errs, fmt.Errorf("订阅 %s 失败: %w", pair.Symbol, err))
		return errs
	}

	runCtx, cancel := context.WithCancel(ctx)
	go stream.Run(runCtx)

	m.mu.Lock()
	m.active = stream
	m.cancelRun = cancel
	m.msgCh = stream.Messages()
	m.mu.Unlock()

	m.logger.Info("已订阅交易对",
		zap.String("symbol", pair.Symbol),
		zap.String("prev", prev.Symbol),
		zap.Uint64("generation", gen),
	)
	return errs
}

func (m *Manager) closeActive() error {
	m.mu.Lock()
	stream, cancel := m.active, m.cancelRun
	m.active, m.cancelRun, m.msgCh = nil, nil, nil
	m.mu.Unlock()

	if stream == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return stream.Close()
}

// markStale 连接中断后停止读取，状态保留为最后一次快照
func (m *Manager) markStale() {
	m.mu.Lock()
	m.msgCh = nil
	m.mu.Unlock()

	st := m.store.Load()
	m.logger.Warn("行情流已结束，看板数据将不再更新",
		zap.String("symbol", st.Pair.Symbol),
		zap.Int64("last_message_at_ms", st.LastMessageAtMs),
	)
}

func (m *Manager) handle(msg *model.DepthMessage) {
	if msg == nil {
		return
	}

	next := m.store.Load().Apply(msg, m.opts.State, timeutil.NowMs())
	m.store.Swap(next)

	appliedNs := timeutil.NowNano()
	m.tracker.Add(msg.ArrivedAtUnixNs, appliedNs)

	var lat int64
	if msg.ArrivedAtUnixNs > 0 {
		lat = appliedNs - msg.ArrivedAtUnixNs
	}
	m.prom.RecordMessage(next.Pair.Symbol, next.BestBid, next.BestAsk, next.Imbalance,
		len(next.Snapshot.Bids), len(next.Snapshot.Asks), time.Duration(lat))

	m.publish(next)
}

func (m *Manager) publish(st *store.State) {
	for _, s := range m.sinks {
		s.Publish(st)
	}
}
