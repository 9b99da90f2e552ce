// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bus publishes matched transactions to Kafka for downstream
// consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/types"
)

const produceTimeout = 5 * time.Second

// Publisher pushes records to the message bus. Delivery is
// at-least-once; callers decide what a failed publish means.
type Publisher interface {
	Publish(ctx context.Context, tx *types.Transaction) error
	PublishRaw(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// KafkaPublisher is a Publisher on a synchronous Kafka producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a synchronous producer to brokers.
// Transactions go to topic, keyed by signature so per-signature order
// is preserved within a partition.
func NewKafkaPublisher(brokers []string, topic, clientID string, log *zap.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Timeout = produceTimeout
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Info("kafka producer ready",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)
	return newFromProducer(producer, topic, log), nil
}

func newFromProducer(p sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, log: log}
}

func (k *KafkaPublisher) Publish(ctx context.Context, tx *types.Transaction) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return k.PublishRaw(ctx, k.topic, tx.Signature, payload)
}

// PublishRaw sends one message as-is. The producer's own timeout
// bounds the send; the context is only consulted up front because
// sarama's sync API does not take one.
func (k *KafkaPublisher) PublishRaw(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	k.log.Debug("published message",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
