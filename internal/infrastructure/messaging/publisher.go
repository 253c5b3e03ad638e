// Package messaging publishes domain events through a pluggable transport.
package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("messaging")

// Envelope wraps every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Key        string          `json:"key,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Message is an encoded envelope ready for a transport.
type Message struct {
	ID    string
	Topic string
	Key   string
	Body  []byte
}

// Transport delivers messages to a broker.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Publisher encodes events and hands them to a transport, either
// synchronously or in the background.
type Publisher struct {
	transport    Transport
	logger       *zap.Logger
	asyncTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPublisher(transport Transport, logger *zap.Logger, asyncTimeout time.Duration) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if asyncTimeout <= 0 {
		asyncTimeout = 5 * time.Second
	}
	return &Publisher{
		transport:    transport,
		logger:       logger.With(zap.String("module", "messaging")),
		asyncTimeout: asyncTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	return p.PublishWithKey(ctx, topic, "", event)
}

// PublishWithKey publishes event with a partition/routing key.
func (p *Publisher) PublishWithKey(ctx context.Context, topic, key string, event any) error {
	ctx, span := tracer.Start(ctx, "Messaging.Publisher.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("Topic", topic))

	msg, err := p.encode(topic, key, event)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("EventId", msg.ID))

	if err := p.transport.Send(ctx, msg); err != nil {
		err = errors.Wrapf(err, "publish to %s", topic)
		span.RecordError(err)
		return err
	}
	return nil
}

// PublishAsync publishes event in the background. Failures are logged only.
func (p *Publisher) PublishAsync(ctx context.Context, topic string, event any) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("publisher closed, dropping event", zap.String("topic", topic))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.asyncTimeout)
		defer cancel()
		if err := p.Publish(ctx, topic, event); err != nil {
			p.logger.Warn("async publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// Close waits for background publishes and closes the transport.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	return p.transport.Close()
}

func (p *Publisher) encode(topic, key string, event any) (Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Message{}, errors.Wrap(err, "encode event")
	}
	env := Envelope{
		ID:         ulid.Make().String(),
		Topic:      topic,
		Key:        key,
		OccurredAt: p.now(),
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Message{}, errors.Wrap(err, "encode envelope")
	}
	return Message{ID: env.ID, Topic: topic, Key: key, Body: body}, nil
}

// DecodeEnvelope parses a message body produced by Publisher.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	return env, nil
}
