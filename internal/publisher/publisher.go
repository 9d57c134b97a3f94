// Package publisher sends closed candles and trade plans to Kafka as JSON.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/navid-fn/flowscope/internal/recorder"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// MessageWriter is the part of *kafka.Writer the sender uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer for broker. Topics are set per message.
func NewWriter(broker string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		Compression:            kafka.Zstd,
		AllowAutoTopicCreation: true,
	}
}

// Sender writes messages to Kafka.
type Sender struct {
	writer MessageWriter
	logger *logrus.Logger
}

func NewSender(writer MessageWriter, logger *logrus.Logger) *Sender {
	return &Sender{writer: writer, logger: logger}
}

// Send writes msgs in one call. Errors after ctx was cancelled are
// dropped, since they only mean shutdown is in progress.
func (s *Sender) Send(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := s.writer.WriteMessages(writeCtx, msgs...)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("kafka write failed: %w", err)
	}
	s.logger.WithField("messages", len(msgs)).Debug("Published to Kafka")
	return nil
}

func (s *Sender) Close() error {
	return s.writer.Close()
}

// Sink publishes the candle and plan parts of recorder batches, keyed by
// symbol so each instrument stays ordered within a partition.
type Sink struct {
	sender      *Sender
	candleTopic string
	planTopic   string
}

func NewSink(sender *Sender, candleTopic, planTopic string) *Sink {
	return &Sink{sender: sender, candleTopic: candleTopic, planTopic: planTopic}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Write(ctx context.Context, b recorder.Batch) error {
	msgs := make([]kafka.Message, 0, len(b.Candles)+len(b.Plans))
	for _, c := range b.Candles {
		m, err := message(s.candleTopic, c.Symbol, c)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	for _, p := range b.Plans {
		m, err := message(s.planTopic, p.Symbol, p)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return s.sender.Send(ctx, msgs...)
}

func message(topic, key string, v any) (kafka.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize failed: %w", err)
	}
	return kafka.Message{Topic: topic, Key: []byte(key), Value: data}, nil
}
