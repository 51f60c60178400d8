// Package backoff 实现建立订阅时的指数退避重试。
// 只用于切换交易对后首次拨号失败的重试；已建立的连接断开后不会自动恢复。
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff 指数退避计算器
// 第 n 次调用 Next() 返回 base*2^n（不超过 max），再叠加 ±jitter 抖动
type Backoff struct {
	base    time.Duration
	max     time.Duration
	jitter  float64
	attempt int
}

// New 创建退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间
// 参数 jitter: 抖动比例（0-1），0.2 表示 ±20%
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{base: base, max: max, jitter: jitter}
}

// NewDefault 创建默认退避计算器：500ms 起步，上限 10s，抖动 ±20%
func NewDefault() *Backoff {
	return New(500*time.Millisecond, 10*time.Second, 0.2)
}

// Next 返回下一次重试前的等待时间
func (b *Backoff) Next() time.Duration {
	delay := b.max
	// 防止位移溢出
	if b.attempt < 32 {
		if d := b.base * time.Duration(int64(1)<<b.attempt); d > 0 && d < b.max {
			delay = d
		}
	}

	if b.jitter > 0 {
		factor := 1.0 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}

	b.attempt++
	return delay
}

// Reset 重置重试次数
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 当前已重试次数
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Retry 最多执行 attempts 次 fn，两次之间按退避等待
// fn 成功即返回 nil；ctx 取消时返回 ctx.Err()；全部失败返回最后一次错误。
func (b *Backoff) Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	b.Reset()

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(b.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
