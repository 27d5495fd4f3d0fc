package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/metrics"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer 按批消费点击事件：先落库，再提交 offset（至少一次）。
type KafkaConsumer struct {
	reader    messageReader
	store     ClickWriter
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, store ClickWriter, batchSize int, interval time.Duration) *KafkaConsumer {
	if groupID == "" {
		groupID = "click-stats-consumer"
	}
	return newKafkaConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), store, batchSize, interval)
}

func newKafkaConsumer(r messageReader, store ClickWriter, batchSize int, interval time.Duration) *KafkaConsumer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &KafkaConsumer{
		reader:    r,
		store:     store,
		batchSize: batchSize,
		interval:  interval,
	}
}

const maxPendingBatches = 10

type fetched struct {
	msg   kafka.Message
	click shortlink.Click
	ok    bool // 能解析成 Click
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	msgCh := make(chan fetched, k.batchSize)

	// 启动读取协程
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("kafka read failed", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			f := fetched{msg: msg}
			if err := json.Unmarshal(msg.Value, &f.click); err != nil {
				slog.Error("unmarshal click failed", "err", err, "offset", msg.Offset)
			} else {
				f.ok = true
			}
			select {
			case msgCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	pending := make([]fetched, 0, k.batchSize)
	retrying := false // 上次写库失败，只在 tick 上重试
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.flush(pending)
			return

		case f, ok := <-msgCh:
			if !ok {
				k.flush(pending)
				return
			}
			pending = append(pending, f)
			if retrying {
				pending = k.retain(pending, false)
				continue
			}
			if len(pending) >= k.batchSize {
				ok := k.flush(pending)
				retrying = !ok
				pending = k.retain(pending, ok)
			}

		case <-ticker.C:
			if len(pending) > 0 {
				ok := k.flush(pending)
				retrying = !ok
				pending = k.retain(pending, ok)
			}
		}
	}
}

// retain 写库失败时保留这一批，下次 tick 重试；
// 后面批次的 offset 一旦提交就会把它一起确认掉，所以不能先跳过。
// 积压达到 maxPendingBatches 批时放弃。
func (k *KafkaConsumer) retain(pending []fetched, flushed bool) []fetched {
	if flushed {
		return pending[:0]
	}
	if len(pending) >= maxPendingBatches*k.batchSize {
		metrics.ClickEvents.WithLabelValues("dropped").Add(float64(len(pending)))
		slog.Error("click stats: store unavailable, dropping backlog", "count", len(pending))
		return pending[:0]
	}
	return pending
}

// flush 返回是否已落库（并尝试提交 offset）。
func (k *KafkaConsumer) flush(pending []fetched) bool {
	if len(pending) == 0 {
		return true
	}
	clicks := make([]shortlink.Click, 0, len(pending))
	msgs := make([]kafka.Message, 0, len(pending))
	for _, f := range pending {
		if f.ok {
			clicks = append(clicks, f.click)
		}
		msgs = append(msgs, f.msg)
	}

	// 写库失败不提交 offset，重启或 rebalance 后会重新投递
	if err := flush(k.store, clicks); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.reader.CommitMessages(ctx, msgs...); err != nil {
		slog.Error("kafka commit failed", "err", err)
	}
	return true
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
