package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaSink publishes each report as one message keyed by its root transaction hash.
type KafkaSink struct {
	topic    string
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, l *zap.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	// reports can be large
	cfg.Producer.MaxMessageBytes = 16 * 1024 * 1024

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewKafkaSinkWithProducer(producer, topic, l), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string, l *zap.Logger) *KafkaSink {
	return &KafkaSink{
		topic:    topic,
		producer: producer,
		logger:   l,
	}
}

func (s *KafkaSink) Write(ctx context.Context, r *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(r.RootHash),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("runId"), Value: []byte(r.RunId)},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	s.logger.Sugar().Infow("Published report",
		zap.String("topic", s.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("runId", r.RunId),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
