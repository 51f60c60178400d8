// Package store 维护看板的当前状态。
// 状态由事件循环单写者整体替换，读者通过原子指针拿到不可变快照。
package store

import (
	"sync/atomic"

	"orderbook-dashboard/internal/core/book"
	"orderbook-dashboard/internal/core/model"
	"orderbook-dashboard/internal/stats/spread"
)

// Options 状态推导参数
type Options struct {
	// TableDepth 表格深度
	TableDepth int
	// ChartDepth 深度图深度
	ChartDepth int
	// ChangeMode 变化标记比对方式
	ChangeMode book.ChangeMode
}

// State 看板状态
// 一旦发布即视为只读；每条消息通过 Apply 生成新值
type State struct {
	// Pair 当前交易对
	Pair model.TradingPair
	// Ready 新订阅的首条消息是否已到达
	Ready bool
	// Snapshot 表格快照
	Snapshot model.Snapshot
	// Depth 深度图
	Depth model.DepthChart
	// History 价差历史
	History spread.History
	// Imbalance 买卖量失衡，可能为 NaN
	Imbalance float64
	// BestBid 最高买价
	BestBid float64
	// BestAsk 最低卖价
	BestAsk float64
	// LastUpdateID 最近一条消息的交易所序列号
	LastUpdateID int64
	// LastMessageAtMs 最近一条消息的处理时间（Unix 毫秒），连接断开后用于判断数据是否陈旧
	LastMessageAtMs int64
	// Messages 当前订阅已处理的消息数
	Messages int64
}

// Empty 返回指定交易对的初始状态：无快照、无历史、失衡为 0、未就绪
func Empty(pair model.TradingPair) *State {
	return &State{
		Pair:    pair,
		History: spread.NewHistory(spread.HistoryCapacity),
	}
}

// Apply 基于一条解析后的消息生成下一状态
// 参数 msg: 解析后的深度消息
// 参数 opts: 推导参数
// 参数 nowMs: 当前时间（Unix 毫秒），作为价差样本时间戳
func (s *State) Apply(msg *model.DepthMessage, opts Options, nowMs int64) *State {
	next := &State{
		Pair:  s.Pair,
		Ready: true,
		Snapshot: book.Reduce(s.Snapshot, msg.Bids, msg.Asks, book.Options{
			Depth: opts.TableDepth,
			Mode:  opts.ChangeMode,
		}),
		Depth:           book.DepthChart(msg.Bids, msg.Asks, opts.ChartDepth),
		History:         s.History.Append(spread.Sample(msg.Bids, msg.Asks, nowMs)),
		Imbalance:       spread.Imbalance(msg.Bids, msg.Asks),
		BestBid:         spread.BestBid(msg.Bids),
		BestAsk:         spread.BestAsk(msg.Asks),
		LastUpdateID:    msg.LastUpdateID,
		LastMessageAtMs: nowMs,
		Messages:        s.Messages + 1,
	}
	return next
}

// Spread 最近一次价差；尚无样本时返回 false
func (s *State) Spread() (float64, bool) {
	latest, ok := s.History.Latest()
	return latest.Spread, ok
}

// Store 当前状态持有者
type Store struct {
	current atomic.Pointer[State]
}

// New 创建状态持有者
// 参数 pair: 初始交易对
func New(pair model.TradingPair) *Store {
	s := &Store{}
	s.current.Store(Empty(pair))
	return s
}

// Load 获取当前状态（只读）
func (s *Store) Load() *State {
	return s.current.Load()
}

// Swap 整体替换当前状态
func (s *Store) Swap(next *State) {
	if next == nil {
		return
	}
	s.current.Store(next)
}

// Reset 将状态重置为指定交易对的初始状态并返回
func (s *Store) Reset(pair model.TradingPair) *State {
	st := Empty(pair)
	s.current.Store(st)
	return st
}
