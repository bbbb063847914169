package repository

import (
	"context"
	"time"

	"TokenPulse/internal/domain/models"
	pkgkafka "TokenPulse/pkg/kafka"
)

// ArchivedTransaction is the Kafka wire form of an accepted transaction.
type ArchivedTransaction struct {
	Token     string  `json:"token"`
	Signature string  `json:"signature"`
	Slot      uint64  `json:"slot"`
	Timestamp int64   `json:"ts_ms"`
	Side      string  `json:"side"`
	Wallet    string  `json:"wallet"`
	Amount    uint64  `json:"amount"`
	Price     float64 `json:"price"`
	Venue     string  `json:"venue"`
}

func toArchived(tokenID string, tx models.Transaction) ArchivedTransaction {
	return ArchivedTransaction{
		Token:     tokenID,
		Signature: tx.Signature,
		Slot:      tx.Slot,
		Timestamp: tx.Timestamp.UnixMilli(),
		Side:      string(tx.Side),
		Wallet:    tx.Wallet,
		Amount:    tx.Amount,
		Price:     tx.Price,
		Venue:     tx.Venue,
	}
}

// Transaction converts the wire form back to the domain type.
func (a ArchivedTransaction) Transaction() models.Transaction {
	return models.Transaction{
		Signature: a.Signature,
		Slot:      a.Slot,
		Timestamp: time.UnixMilli(a.Timestamp).UTC(),
		Side:      models.Side(a.Side),
		Wallet:    a.Wallet,
		Amount:    a.Amount,
		Price:     a.Price,
		Venue:     a.Venue,
	}
}

// KafkaPublisher publishes accepted transactions keyed by token mint.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, tokenID string, tx models.Transaction) error {
	return p.PublishBatch(ctx, tokenID, []models.Transaction{tx})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, tokenID string, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, toMessages(tokenID, txs))
}

func toMessages(tokenID string, txs []models.Transaction) []pkgkafka.Message {
	msgs := make([]pkgkafka.Message, len(txs))
	for i, tx := range txs {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(tokenID),
			Value:   toArchived(tokenID, tx),
			Headers: map[string]string{"token": tokenID, "venue": tx.Venue},
		}
	}
	return msgs
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
