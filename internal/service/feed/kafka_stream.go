package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
	pkgkafka "TokenPulse/pkg/kafka"
	applogger "TokenPulse/pkg/logger"
)

// TokenHeader carries the mint on swap messages so consumers can skip other
// tokens without decoding the payload.
const TokenHeader = "token"

// KafkaStream is an EventSource reading raw swap events from a Kafka topic.
// Every subscription gets its own consumer group so each token sees the whole topic.
type KafkaStream struct {
	brokers     []string
	topic       string
	groupPrefix string
	offset      string
	l           *applogger.Logger

	mu   sync.Mutex
	subs map[drepo.SubscriptionHandle]*pkgkafka.Consumer
	seq  uint64
}

func NewKafkaStream(brokers []string, topic, groupPrefix, offset string) *KafkaStream {
	if groupPrefix == "" {
		groupPrefix = "tokenpulse"
	}
	if offset == "" {
		offset = "latest"
	}
	return &KafkaStream{
		brokers:     brokers,
		topic:       topic,
		groupPrefix: groupPrefix,
		offset:      offset,
		subs:        make(map[drepo.SubscriptionHandle]*pkgkafka.Consumer),
	}
}

// SetLogger injects a structured logger.
func (s *KafkaStream) SetLogger(l *applogger.Logger) { s.l = l }

// swapHandler decodes one RawEvent per message.
type swapHandler struct {
	topic   string
	token   string
	onEvent func(models.RawEvent)
	l       *applogger.Logger
}

func (h *swapHandler) Topic() string { return h.topic }

func (h *swapHandler) Handle(_ context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ev, err := decodeSwap(data)
	if err != nil {
		// a poison message must not be retried or block the partition
		h.l.Debug("kafka swap skipped", applogger.String("token", h.token), applogger.Error(err))
		return nil
	}
	if ev.Mint != "" && ev.Mint != h.token {
		return nil
	}
	h.onEvent(ev)
	return nil
}

func decodeSwap(data []byte) (models.RawEvent, error) {
	var ev models.RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.RawEvent{}, fmt.Errorf("%w: swap message: %v", models.ErrMalformedEvent, err)
	}
	if ev.Signature == "" {
		return models.RawEvent{}, fmt.Errorf("%w: swap message without signature", models.ErrMalformedEvent)
	}
	return ev, nil
}

// skipOtherTokens empties messages whose token header names another mint, so
// the handler drops them without decoding.
func skipOtherTokens(token string) pkgkafka.HookFuncs {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if v := pkgkafka.HeaderValue(km, TokenHeader); v != "" && v != token {
				return ctx, km, nil, nil
			}
			return ctx, km, data, nil
		},
	}
}

// Subscribe starts a consumer for tokenID. The first read failure is reported
// once through onError and stops the consumer's reader.
func (s *KafkaStream) Subscribe(ctx context.Context, tokenID string, onEvent func(models.RawEvent), onError func(error)) (drepo.SubscriptionHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrConnection, err)
	}
	var once sync.Once
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(s.brokers),
		pkgkafka.WithConsumerGroupID(s.groupPrefix+"-"+tokenID),
		pkgkafka.WithConsumerAutoOffsetReset(s.offset),
		pkgkafka.WithConsumerRetry(0, 50*time.Millisecond, time.Second),
		pkgkafka.WithConsumerLogger(s.l),
		pkgkafka.WithConsumerReadErrorHandler(func(topic string, err error) bool {
			once.Do(func() {
				onError(fmt.Errorf("%w: kafka read %s: %v", models.ErrConnection, topic, err))
			})
			return true
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: kafka consumer: %v", models.ErrConnection, err)
	}
	consumer.WithConsumerHook(skipOtherTokens(tokenID))
	consumer.RegisterHandler(&swapHandler{topic: s.topic, token: tokenID, onEvent: onEvent, l: s.l})
	if err := consumer.Start(); err != nil {
		return "", fmt.Errorf("%w: kafka start: %v", models.ErrConnection, err)
	}

	s.mu.Lock()
	s.seq++
	h := drepo.SubscriptionHandle(tokenID + "#kafka" + strconv.FormatUint(s.seq, 10))
	s.subs[h] = consumer
	s.mu.Unlock()
	s.l.Info("kafka feed subscribed", applogger.String("token", tokenID), applogger.String("topic", s.topic))
	return h, nil
}

func (s *KafkaStream) Unsubscribe(ctx context.Context, h drepo.SubscriptionHandle) error {
	s.mu.Lock()
	consumer, ok := s.subs[h]
	delete(s.subs, h)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := consumer.Stop(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", h, err)
	}
	return nil
}
