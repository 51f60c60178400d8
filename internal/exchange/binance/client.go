// Package binance 实现 Binance 现货 WebSocket 深度流客户端。
// 连接地址: wss://stream.binance.com:9443/ws/<symbol>@depth20@100ms
// 订阅方式: 流名称直接编码在 URL 中，无需发送订阅请求
// 心跳机制: 协议层 ping/pong
// 断线处理: 不自动重连，连接中断后关闭消息通道，由上层决定是否重新订阅
package binance

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/util/timeutil"
)

// Client Binance WebSocket 客户端
// 每个客户端只服务一个交易对，切换交易对时应关闭旧客户端并创建新客户端
type Client struct {
	// cfg WebSocket 配置
	cfg *config.WSConfig
	// pair 订阅的交易对
	pair model.TradingPair
	// url 实际连接地址
	url string
	// logger 日志记录器
	logger *zap.Logger
	// prom Prometheus 指标，可为 nil
	prom *metrics.Metrics
	// parser 消息解析器
	parser *Parser

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁
	connMu sync.Mutex

	// msgCh 深度消息输出通道，由 readLoop 在退出时关闭
	msgCh chan *model.DepthMessage

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex

	// lastMsgTime 最后消息时间（纳秒）
	lastMsgTime int64
	// updateCount 更新计数（用于计算 QPS）
	updateCount int64
	// closed 是否已关闭
	closed int32

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewClient 创建 Binance WebSocket 客户端
// 参数 cfg: WebSocket 配置
// 参数 pair: 订阅的交易对
// 参数 logger: 日志记录器
// 参数 m: Prometheus 指标，可为 nil
func NewClient(cfg *config.WSConfig, pair model.TradingPair, logger *zap.Logger, m *metrics.Metrics) *Client {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Client{
		cfg:    cfg,
		pair:   pair,
		url:    cfg.StreamURL(pair.Symbol),
		logger: logger.Named("binance").With(zap.String("symbol", pair.Symbol)),
		prom:   m,
		parser: NewParser(),
		msgCh:  make(chan *model.DepthMessage, bufferSize),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return fmt.Errorf("Binance 客户端已关闭")
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "orderbook-dashboard/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout()}
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("连接 Binance WebSocket 失败: %w", err)
	}

	readTimeout := time.Duration(c.readTimeoutMs()) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}

	c.conn = conn
	c.metricsMu.Lock()
	c.metrics.Connected = true
	c.metricsMu.Unlock()

	c.logger.Info("Binance WebSocket 连接成功", zap.String("url", c.url))
	return nil
}

// Run 启动客户端主循环
// 阻塞直到连接中断、ctx 取消或 Close 被调用；返回时消息通道已关闭
func (c *Client) Run(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.pingLoop(loopCtx)
	go c.metricsLoop(loopCtx)
	go func() {
		// ctx 取消时关闭连接，使阻塞中的 ReadMessage 返回
		<-loopCtx.Done()
		c.closeConn()
	}()

	c.readLoop(loopCtx)
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.msgCh)

	readTimeout := time.Duration(c.readTimeoutMs()) * time.Millisecond

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		c.logger.Warn("Binance 未连接，读取循环退出")
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			c.logger.Warn("Binance 连接中断，不再接收更新", zap.Error(err))
			c.incrementDisconnectCount()
			c.prom.Disconnected(c.pair.Symbol)
			c.closeConn()
			return
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		atomic.StoreInt64(&c.lastMsgTime, timeutil.NowNano())

		msg, err := c.parser.Parse(data)
		if err != nil {
			c.incrementParseErrorCount()
			c.prom.ParseError(c.pair.Symbol)
			c.maybeLogParseError(err, data)
			continue
		}

		atomic.AddInt64(&c.updateCount, 1)
		select {
		case c.msgCh <- msg:
		case <-ctx.Done():
			return
		default:
			c.incrementDroppedCount()
			c.prom.Dropped(c.pair.Symbol)
			c.logger.Warn("Binance msgCh 已满，丢弃消息")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	intervalMs := c.cfg.PingIntervalMs
	if intervalMs <= 0 {
		intervalMs = c.readTimeoutMs() / 2
		if intervalMs <= 0 {
			intervalMs = 15000
		}
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				c.connMu.Unlock()
				c.logger.Warn("发送 Binance ping 失败", zap.Error(err))
				continue
			}
			c.connMu.Unlock()
		}
	}
}

func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := atomic.LoadInt64(&c.updateCount)
			qps := float64(count - lastCount)
			lastCount = count

			c.metricsMu.Lock()
			c.metrics.UpdatesPerSec = qps
			c.metricsMu.Unlock()
		}
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	c.metricsMu.Lock()
	c.metrics.Connected = false
	c.metricsMu.Unlock()
}

// Close 关闭客户端
// 可重复调用；消息通道由读取循环在退出时关闭
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.closeConn()
	c.logger.Info("Binance 客户端已关闭")
	return nil
}

// Messages 获取深度消息通道
func (c *Client) Messages() <-chan *model.DepthMessage {
	return c.msgCh
}

// Pair 获取订阅的交易对
func (c *Client) Pair() model.TradingPair {
	return c.pair
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	m := c.metrics
	c.metricsMu.RUnlock()

	if lastMsg := atomic.LoadInt64(&c.lastMsgTime); lastMsg > 0 {
		m.LastMessageAgeMs = timeutil.NanoToMs(timeutil.NowNano() - lastMsg)
	}
	return m
}

func (c *Client) incrementDisconnectCount() {
	c.metricsMu.Lock()
	c.metrics.DisconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

func (c *Client) incrementDroppedCount() {
	c.metricsMu.Lock()
	c.metrics.DroppedCount++
	c.metricsMu.Unlock()
}

func (c *Client) readTimeoutMs() int {
	if c.cfg.ReadTimeoutMs > 0 {
		return c.cfg.ReadTimeoutMs
	}
	// 未配置时使用 30s
	return 30000
}

func (c *Client) handshakeTimeout() time.Duration {
	if c.cfg.HandshakeTimeoutMs > 0 {
		return time.Duration(c.cfg.HandshakeTimeoutMs) * time.Millisecond
	}
	return 10 * time.Second
}

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
// 第 1 次错误总会记录，便于尽早发现格式变化。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count != 1 && count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&c.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 Binance 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
