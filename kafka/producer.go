// Package kafka publishes a drop copy of every execution report to a Kafka topic.
package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Envelope is the value written to Kafka for one report.
type Envelope struct {
	Report *protocol.ExecutionReport `json:"report"`

	// Notional is FillQty * FillPrice as an exact decimal string; "0" for non-fill reports.
	Notional string `json:"notional"`
}

// NewEnvelope wraps report for publication.
func NewEnvelope(report *protocol.ExecutionReport) Envelope {
	notional := decimal.Zero
	if report.Status == protocol.StatusFill {
		notional = decimal.NewFromFloat(report.FillPrice).Mul(decimal.NewFromInt(int64(report.FillQty)))
	}
	return Envelope{Report: report, Notional: notional.String()}
}

// Producer is a PublishLog writing reports to one topic, keyed by instrument so that the
// reports of one instrument keep their order within a partition.
//
// Publish blocks until the brokers acknowledged the batch; wrap it in an AsyncPublishLog
// to keep it off the matching path.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewSyncProducer creates a SyncProducer with a reliable configuration, retrying the
// connection a few times.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	// SyncProducer requires successes to be returned
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner

	var prod sarama.SyncProducer
	var err error

	for i := 0; i < 3; i++ {
		prod, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			return prod, nil
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to start producer after retries: %w", err)
}

// NewProducer wraps producer. A nil logger disables logging.
func NewProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish implements match.PublishLog.
func (p *Producer) Publish(reports ...*protocol.ExecutionReport) {
	if len(reports) == 0 {
		return
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(reports))
	for _, report := range reports {
		value, err := json.Marshal(NewEnvelope(report))
		if err != nil {
			p.failed.Add(1)
			p.logger.Error("failed to marshal report", zap.Uint64("order_id", report.OrderID), zap.Error(err))
			continue
		}

		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Value: sarama.ByteEncoder(value),
		}
		if report.Instrument != "" {
			msg.Key = sarama.StringEncoder(report.Instrument)
		}
		msgs = append(msgs, msg)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		failed := len(msgs)
		var producerErrs sarama.ProducerErrors
		if errors.As(err, &producerErrs) {
			failed = len(producerErrs)
		}
		p.failed.Add(uint64(failed))
		p.sent.Add(uint64(len(msgs) - failed))
		p.logger.Warn("failed to produce reports",
			zap.String("topic", p.topic),
			zap.Int("failed", failed),
			zap.Error(err),
		)
		return
	}
	p.sent.Add(uint64(len(msgs)))
}

// Sent returns the number of reports acknowledged by the brokers.
func (p *Producer) Sent() uint64 {
	return p.sent.Load()
}

// Failed returns the number of reports that could not be produced.
func (p *Producer) Failed() uint64 {
	return p.failed.Load()
}

// Close closes the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
