package jsonl

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reporter 按固定间隔采集一条记录写入 Writer
type Reporter struct {
	w        *Writer
	interval time.Duration
	collect  func() any
	logger   *zap.Logger
}

// NewReporter 创建周期写入器
// 参数 w: JSONL 写入器
// 参数 intervalMs: 采集间隔（毫秒），非正数时为 10s
// 参数 collect: 采集函数，在 Run 所在 goroutine 中调用
// 参数 logger: 日志记录器
func NewReporter(w *Writer, intervalMs int, collect func() any, logger *zap.Logger) *Reporter {
	if intervalMs <= 0 {
		intervalMs = 10000
	}
	return &Reporter{
		w:        w,
		interval: time.Duration(intervalMs) * time.Millisecond,
		collect:  collect,
		logger:   logger.Named("jsonl"),
	}
}

// Run 周期写入，ctx 取消时再写入最后一条并 flush
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report()
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	if err := r.w.Write(r.collect()); err != nil {
		r.logger.Warn("写入指标记录失败", zap.String("path", r.w.Path()), zap.Error(err))
		return
	}
	if err := r.w.Flush(); err != nil {
		r.logger.Warn("flush 指标文件失败", zap.String("path", r.w.Path()), zap.Error(err))
	}
}
