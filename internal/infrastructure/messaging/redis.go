package messaging

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type streamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisTransport appends messages to a Redis stream named after the topic.
type RedisTransport struct {
	client streamWriter
	maxLen int64
}

func NewRedisTransport(client streamWriter, maxLen int64) *RedisTransport {
	return &RedisTransport{client: client, maxLen: maxLen}
}

func (t *RedisTransport) Send(ctx context.Context, msg Message) error {
	return t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: msg.Topic,
		MaxLen: t.maxLen,
		Approx: t.maxLen > 0,
		Values: map[string]any{
			"id":   msg.ID,
			"key":  msg.Key,
			"body": string(msg.Body),
		},
	}).Err()
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

type streamReader interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// RedisFeed follows a Redis stream written by RedisTransport.
type RedisFeed struct {
	client streamReader
	block  time.Duration
}

func NewRedisFeed(client streamReader, block time.Duration) *RedisFeed {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisFeed{client: client, block: block}
}

// Subscribe delivers envelopes appended to topic after the call until ctx is
// done.
func (f *RedisFeed) Subscribe(ctx context.Context, topic string, out chan<- Envelope) error {
	last := "$"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := f.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{topic, last},
			Count:   32,
			Block:   f.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "read stream %s", topic)
		}

		for _, stream := range streams {
			for _, m := range stream.Messages {
				last = m.ID
				body, ok := m.Values["body"].(string)
				if !ok {
					continue
				}
				env, err := DecodeEnvelope([]byte(body))
				if err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
