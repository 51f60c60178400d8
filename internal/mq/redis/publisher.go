// Package redis 将看板状态发布到 Redis pub/sub。
// 频道: <prefix>_<SYMBOL>_state
package redis

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis"
	"go.uber.org/zap"

	"orderbook-dashboard/internal/config"
	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/util/timeutil"
	"orderbook-dashboard/internal/view"
)

const (
	sinkName  = "redis"
	queueSize = 256
)

type message struct {
	channel string
	payload []byte
}

// Publisher Redis 状态发布器
// Publish 只入队，由后台 goroutine 逐条发送；队列满时丢弃
type Publisher struct {
	client *redis.Client
	prefix string
	prom   *metrics.Metrics
	logger *zap.Logger

	queue     chan message
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewPublisher 连接 Redis 并创建发布器
func NewPublisher(cfg *config.RedisConfig, prom *metrics.Metrics, logger *zap.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping().Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	p := &Publisher{
		client: client,
		prefix: cfg.ChannelPrefix,
		prom:   prom,
		logger: logger.Named("redis"),
		queue:  make(chan message, queueSize),
	}
	p.wg.Add(1)
	go p.run()

	p.logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))
	return p, nil
}

// Publish 发布一条状态
func (p *Publisher) Publish(st *store.State) {
	data, err := json.Marshal(view.FromState(st, timeutil.NowMs()))
	if err != nil {
		p.logger.Error("序列化状态失败", zap.Error(err))
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- message{channel: Channel(p.prefix, st.Pair.Symbol), payload: data}:
	default:
		p.prom.PublishFailed(sinkName)
		p.logger.Warn("Redis 发布队列已满，丢弃状态", zap.String("symbol", st.Pair.Symbol))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for m := range p.queue {
		if err := p.client.Publish(m.channel, m.payload).Err(); err != nil {
			p.prom.PublishFailed(sinkName)
			p.logger.Warn("发布状态失败", zap.String("channel", m.channel), zap.Error(err))
		}
	}
}

// Close 发送队列中剩余的消息后关闭连接
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		err = p.client.Close()
	})
	return err
}

// Channel 返回交易对的状态频道
func Channel(prefix, symbol string) string {
	return prefix + "_" + symbol + "_state"
}
