package stats

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/metrics"
)

// Collector 收集器接口：Collect 不能阻塞请求路径。
type Collector interface {
	Collect(click shortlink.Click)
	Close()
}

// DefaultOverflowWait 通道满时，后台最多再等这么久，等不到就丢弃。
const DefaultOverflowWait = 100 * time.Millisecond

// ChannelCollector 基于 channel 的收集器
type ChannelCollector struct {
	ch           chan shortlink.Click
	mu           sync.RWMutex
	closed       bool
	overflowWait time.Duration
	// 同时在等待的溢出协程数，超过上限直接丢
	waiting    atomic.Int64
	maxWaiting int64
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelCollector{
		ch:           make(chan shortlink.Click, bufferSize),
		overflowWait: DefaultOverflowWait,
		maxWaiting:   int64(bufferSize),
	}
}

func (c *ChannelCollector) Collect(click shortlink.Click) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case c.ch <- click:
		c.mu.RUnlock()
		metrics.ClickEvents.WithLabelValues("collected").Inc()
		return
	default:
	}
	c.mu.RUnlock()

	if c.waiting.Add(1) > c.maxWaiting {
		c.waiting.Add(-1)
		c.drop(click)
		return
	}
	go func() {
		defer c.waiting.Add(-1)
		c.sendWithin(click, c.overflowWait)
	}()
}

func (c *ChannelCollector) sendWithin(click shortlink.Click, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop(click)
		return
	}
	select {
	case c.ch <- click:
		metrics.ClickEvents.WithLabelValues("collected").Inc()
	case <-timer.C:
		c.drop(click)
	}
}

func (c *ChannelCollector) drop(click shortlink.Click) {
	metrics.ClickEvents.WithLabelValues("dropped").Inc()
	slog.Warn("click buffer full, dropping event", "token", click.Token)
}

func (c *ChannelCollector) Events() <-chan shortlink.Click {
	return c.ch
}

// Close 停止接收并关闭通道，消费者读完剩余事件后退出。
// 发送都在读锁内完成，拿到写锁后关闭通道是安全的。
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
