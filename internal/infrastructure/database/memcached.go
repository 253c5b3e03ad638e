package database

import (
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached connects to a comma separated list of servers.
func NewMemcached(servers string) *memcache.Client {
	mc := memcache.New(strings.Split(servers, ",")...)
	mc.Timeout = 200 * time.Millisecond
	mc.MaxIdleConns = 8
	return mc
}
