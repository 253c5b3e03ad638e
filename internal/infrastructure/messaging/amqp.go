package messaging

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmation is the broker's answer to a single publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type amqpChannel interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// confirmChannel publishes on a channel that is in confirm mode.
type confirmChannel struct {
	ch *amqp.Channel
}

func (c confirmChannel) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("amqp channel is not in confirm mode")
	}
	return dc, nil
}

func (c confirmChannel) Close() error {
	return c.ch.Close()
}

// AMQPTransport publishes to a topic exchange using the topic as routing key.
// Send returns only after the broker has confirmed the message.
type AMQPTransport struct {
	ch       amqpChannel
	conn     io.Closer
	exchange string
}

// DialAMQP connects to the broker, declares a durable topic exchange and
// puts the channel into confirm mode.
func DialAMQP(url, exchange string) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	t := NewAMQPTransport(confirmChannel{ch: ch}, exchange)
	t.conn = conn
	return t, nil
}

func NewAMQPTransport(ch amqpChannel, exchange string) *AMQPTransport {
	return &AMQPTransport{ch: ch, exchange: exchange}
}

func (t *AMQPTransport) Send(ctx context.Context, msg Message) error {
	confirm, err := t.ch.Publish(ctx, t.exchange, msg.Topic, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"key": msg.Key},
		Body:         msg.Body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", msg.ID)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "wait for confirm of %s", msg.ID)
	}
	if !acked {
		return errors.Errorf("broker rejected %s", msg.ID)
	}
	return nil
}

func (t *AMQPTransport) Close() error {
	err := t.ch.Close()
	if t.conn != nil {
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
