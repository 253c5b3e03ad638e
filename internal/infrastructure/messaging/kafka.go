package messaging

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka.Writer the transport uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes every message to the Kafka topic of the same name.
// Keyed messages are hashed to a partition; unkeyed ones are spread.
type KafkaTransport struct {
	writer KafkaWriter
}

func NewKafkaTransport(brokers ...string) *KafkaTransport {
	return NewKafkaTransportWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaTransportWithWriter(w KafkaWriter) *KafkaTransport {
	return &KafkaTransport{writer: w}
}

func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	km := kafka.Message{
		Topic: msg.Topic,
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(msg.ID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if msg.Key != "" {
		km.Key = []byte(msg.Key)
	}
	return t.writer.WriteMessages(ctx, km)
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
