package database

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis creates a client for the event streams. Commands honour the
// caller's context deadline; XREAD adds its block duration to the read
// timeout on its own.
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              password,
		DB:                    db,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		ContextTimeoutEnabled: true,
	})
}
