// Package timeutil 提供时间戳工具函数。
package timeutil

import (
	"time"
)

var (
	// baseTime 进程启动时的基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前 Unix 纳秒时间戳
// 以启动时的墙上时间加单调时钟增量计算，系统时间跳变时差值仍保持单调，
// 消息到达时间与处理完成时间的差值因此不会出现负数。
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前 Unix 毫秒时间戳
// 价差历史样本的时间戳使用毫秒
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// NanoToMs 将纳秒时间戳转换为毫秒
func NanoToMs(ns int64) int64 {
	return ns / 1_000_000
}
