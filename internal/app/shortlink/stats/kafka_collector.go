package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/platform/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaCollector struct {
	writer messageWriter
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return newKafkaCollector(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // 同一个 token 落在同一分区
		Async:    true,          // 异步发送
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.ClickEvents.WithLabelValues("dropped").Add(float64(len(messages)))
				slog.Error("kafka write failed", "err", err, "count", len(messages))
			}
		},
	})
}

func newKafkaCollector(w messageWriter) *KafkaCollector {
	return &KafkaCollector{writer: w}
}

func (k *KafkaCollector) Collect(click shortlink.Click) {
	data, err := json.Marshal(click)
	if err != nil {
		slog.Error("marshal click failed", "err", err)
		return
	}
	// Async 模式下 WriteMessages 只入队，不会阻塞请求
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(click.Token),
		Value: data,
	}); err != nil {
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
		slog.Error("kafka write failed", "err", err)
		return
	}
	metrics.ClickEvents.WithLabelValues("collected").Inc()
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
