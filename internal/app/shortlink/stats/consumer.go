package stats

import (
	"context"
	"log/slog"
	"time"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/metrics"
)

// ClickWriter 落库接口，shortlink.Store 满足它。
type ClickWriter interface {
	RecordClicks(ctx context.Context, clicks []shortlink.Click) error
}

const (
	DefaultBatchSize     = 100         //批量写入大小
	DefaultFlushInterval = time.Second //最大等待时间
)

// 消费点击事件
type Consumer struct {
	store     ClickWriter
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(store ClickWriter, collector *ChannelCollector, batchSize int, interval time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Consumer{
		store:     store,
		collector: collector,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run 阻塞消费，直到通道关闭或 ctx 取消；退出前把剩余事件写完。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]shortlink.Click, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(batch)
			return
		case click, ok := <-c.collector.Events():
			if !ok {
				flush(c.store, batch)
				return
			}
			batch = append(batch, click)
			if len(batch) >= c.batchSize {
				flush(c.store, batch)
				batch = batch[:0] //清空切片，但保留容量不变，避免反复分配内存
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(c.store, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain ctx 取消后，把通道里已缓冲的事件也一并写掉。
func (c *Consumer) drain(batch []shortlink.Click) {
	for {
		select {
		case click, ok := <-c.collector.Events():
			if !ok {
				flush(c.store, batch)
				return
			}
			batch = append(batch, click)
			if len(batch) >= c.batchSize {
				flush(c.store, batch)
				batch = batch[:0]
			}
		default:
			flush(c.store, batch)
			return
		}
	}
}

// flush 失败只记日志，点击统计不影响主流程。
func flush(store ClickWriter, batch []shortlink.Click) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := store.RecordClicks(ctx, batch)
	metrics.ClickFlushDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClickEvents.WithLabelValues("failed").Add(float64(len(batch)))
		slog.Error("click stats: flush failed", "err", err, "count", len(batch))
		return err
	}
	metrics.ClickEvents.WithLabelValues("flushed").Add(float64(len(batch)))
	slog.Debug("click stats: flushed", "count", len(batch))
	return nil
}
