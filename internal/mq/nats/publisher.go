// Package nats 将看板状态发布到 NATS。
// 主题: <prefix>.<SYMBOL>.state
package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/util/timeutil"
	"orderbook-dashboard/internal/view"
)

// sinkName 指标中的下游名称
const sinkName = "nats"

// Publisher NATS 状态发布器
type Publisher struct {
	conn   *nats.Conn
	prefix string
	prom   *metrics.Metrics
	logger *zap.Logger
}

// NewPublisher 连接 NATS 并创建发布器
// 连接断开后由 nats 客户端自动重连，期间的发布由客户端缓冲
func NewPublisher(cfg *config.NATSConfig, prom *metrics.Metrics, logger *zap.Logger) (*Publisher, error) {
	logger = logger.Named("nats")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("orderbook-dashboard"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 连接断开", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS 已重连", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败: %w", err)
	}

	logger.Info("NATS 连接成功", zap.String("url", cfg.URL))
	return &Publisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		prom:   prom,
		logger: logger,
	}, nil
}

// Publish 发布一条状态
func (p *Publisher) Publish(st *store.State) {
	subject := Subject(p.prefix, st.Pair.Symbol)
	data, err := json.Marshal(view.FromState(st, timeutil.NowMs()))
	if err != nil {
		p.logger.Error("序列化状态失败", zap.Error(err))
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.prom.PublishFailed(sinkName)
		p.logger.Warn("发布状态失败", zap.String("subject", subject), zap.Error(err))
	}
}

// Close 发送缓冲中的消息后关闭连接
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("关闭 NATS 连接失败: %w", err)
	}
	return nil
}

// Subject 返回交易对的状态主题
func Subject(prefix, symbol string) string {
	return prefix + "." + symbol + ".state"
}
