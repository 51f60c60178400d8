// Package main 是订单簿看板服务的入口点。
// 订阅 Binance 现货有限档深度流，对每条消息计算排序后的买卖盘、累计量、
// 变化标记、价差历史与买卖量失衡，并通过 HTTP/WebSocket 提供给浏览器展示。
//
// 连接中断后不会自动重连，看板保留最后一次状态，可通过切换交易对重新订阅。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/book"
	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/exchange/binance"
	"orderbook-dashboard/internal/metadata"
	"orderbook-dashboard/internal/metrics"
	mqnats "orderbook-dashboard/internal/mq/nats"
	mqredis "orderbook-dashboard/internal/mq/redis"
	"orderbook-dashboard/internal/output/jsonl"
	"orderbook-dashboard/internal/server"
	"orderbook-dashboard/internal/session"
	"orderbook-dashboard/internal/util/backoff"
	"orderbook-dashboard/internal/util/timeutil"
)

type metricsSnapshot struct {
	// TsUnixNs 指标采集时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Session 订阅与时延统计
	Session session.Stats `json:"session"`
	// Ready 当前交易对是否已收到首条消息
	Ready bool `json:"ready"`
	// Messages 当前订阅已处理的消息数
	Messages int64 `json:"messages"`
	// LastMessageAtMs 最近一条消息的处理时间
	LastMessageAtMs int64 `json:"last_message_at_ms"`
	// Clients 在线 WebSocket 客户端数
	Clients int `json:"clients"`
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("服务退出", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	var fetcher metadata.Fetcher
	if cfg.Metadata.ExchangeInfoURL != "" {
		fetcher = metadata.NewHTTPFetcher(cfg.Metadata.TimeoutMs)
	}
	catalog, err := metadata.BuildCatalog(ctx, cfg, fetcher)
	if err != nil {
		return fmt.Errorf("构建交易对目录失败: %w", err)
	}
	logger.Info("交易对目录就绪", zap.Int("pairs", len(catalog.Pairs())), zap.String("default", catalog.Default().Symbol))

	prom := metrics.NewMetrics("orderbook")
	bookStore := store.New(catalog.Default())

	var sinks []session.Sink
	var closers []func() error

	// Hub 需要 Controller，Manager 需要 Sink，先创建 Manager 再把 Hub 加入下游
	hubSink := &lateSink{}
	sinks = append(sinks, hubSink)

	if cfg.NATS.Enabled {
		pub, err := mqnats.NewPublisher(&cfg.NATS, prom, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}
	if cfg.Redis.Enabled {
		pub, err := mqredis.NewPublisher(&cfg.Redis, prom, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}

	factory := func(pair model.TradingPair) session.Stream {
		return binance.NewClient(&cfg.WS, pair, logger, prom)
	}
	manager := session.NewManager(factory, catalog, bookStore, session.Options{
		State: store.Options{
			TableDepth: cfg.Book.TableDepth,
			ChartDepth: cfg.Book.ChartDepth,
			ChangeMode: book.ChangeMode(cfg.Book.ChangeMode),
		},
		DialAttempts: cfg.WS.DialAttempts,
		Backoff:      backoff.NewDefault(),
	}, prom, logger, sinks...)

	hub := server.NewHub(manager, cfg.Server.ClientBufferSize, prom, logger)
	hubSink.set(hub)
	go hub.Run(ctx)

	httpServer := server.New(&cfg.Server, manager, catalog, hub, prom, logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	if cfg.Output.MetricsEnabled {
		w, err := jsonl.NewWriter(filepath.Join(cfg.Output.Dir, "metrics.jsonl"), cfg.Output.BufferSize)
		if err != nil {
			return fmt.Errorf("创建 metrics writer 失败: %w", err)
		}
		closers = append(closers, w.Close)
		reporter := jsonl.NewReporter(w, cfg.Output.MetricsIntervalMs, func() any {
			st := manager.State()
			return metricsSnapshot{
				TsUnixNs:        timeutil.NowNano(),
				Session:         manager.Stats(),
				Ready:           st.Ready,
				Messages:        st.Messages,
				LastMessageAtMs: st.LastMessageAtMs,
				Clients:         hub.ClientCount(),
			}
		}, logger)
		go reporter.Run(ctx)
	}

	managerDone := make(chan error, 1)
	go func() {
		managerDone <- manager.Run(ctx, catalog.Default())
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP 服务异常退出: %w", err)
		}
		cancel()
	}

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		errs := httpServer.Shutdown(shutdownCtx)
		errs = multierr.Append(errs, <-managerDone)
		for _, c := range closers {
			errs = multierr.Append(errs, c())
		}
		done <- errs
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case err := <-done:
		if err != nil {
			logger.Warn("关闭时出现错误", zap.Error(err))
		} else {
			logger.Info("关闭完成")
		}
	}
	return runErr
}

// lateSink 在 Hub 创建前占位的下游
type lateSink struct {
	hub *server.Hub
}

func (s *lateSink) set(h *server.Hub) { s.hub = h }

func (s *lateSink) Publish(st *store.State) {
	if s.hub != nil {
		s.hub.Publish(st)
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
