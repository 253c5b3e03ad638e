package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/totegamma/concrnt-identity/internal/application"
	"github.com/totegamma/concrnt-identity/internal/config"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/database"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/gateway"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/memory"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/messaging"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/repository"
	"github.com/totegamma/concrnt-identity/internal/usecase"
)

// IdentityProvider is implemented by both identity provider drivers.
type IdentityProvider interface {
	usecase.IdentityProvider
	usecase.IdentityDirectory
}

// Stores is the persistence side of the service.
type Stores struct {
	Users    usecase.UserRepository
	Profiles usecase.ProfileRepository
	Tx       usecase.TxManager
}

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Database, logger *zap.Logger) (*gorm.DB, error) {
	return database.NewPostgres(conf.DSN, logger)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.MigratePostgres(db)
}

// NewMemcache creates a memcache client, or nil when no address is set.
func NewMemcache(addr string) *memcache.Client {
	if addr == "" {
		return nil
	}
	return database.NewMemcached(addr)
}

// NewRedis creates a redis client, or nil when no address is set.
func NewRedis(conf config.Server) *redis.Client {
	if conf.RedisAddr == "" {
		return nil
	}
	return database.NewRedis(conf.RedisAddr, "", conf.RedisDB)
}

// NewStores builds the repositories for the configured database driver.
// db and mc are only used by the postgres driver; mc may be nil.
func NewStores(conf config.Database, db *gorm.DB, mc *memcache.Client, logger *zap.Logger) (Stores, error) {
	switch conf.Driver {
	case "memory":
		store := memory.NewStore()
		return Stores{Users: store.Users(), Profiles: store.Profiles(), Tx: store}, nil
	case "postgres":
		if db == nil {
			return Stores{}, fmt.Errorf("postgres driver requires a database connection")
		}
		var profiles usecase.ProfileRepository = repository.NewProfileRepository(db)
		if mc != nil {
			profiles = repository.NewCachedProfileRepository(profiles, mc, logger)
		}
		return Stores{
			Users:    repository.NewUserRepository(db),
			Profiles: profiles,
			Tx:       repository.NewTxManager(db),
		}, nil
	default:
		return Stores{}, fmt.Errorf("unknown database driver %q", conf.Driver)
	}
}

// NewIdentityProvider builds the configured identity provider driver.
func NewIdentityProvider(ctx context.Context, conf config.IdentityProvider, userAgent string) (IdentityProvider, error) {
	switch conf.Driver {
	case "memory":
		return gateway.NewMemoryIdentityProvider(conf.BcryptCost), nil
	case "http":
		return gateway.NewIdentityProviderGateway(ctx, gateway.IdentityProviderConfig{
			BaseURL:      conf.BaseURL,
			Connection:   conf.Connection,
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			TokenURL:     conf.TokenURL,
			Audience:     conf.Audience,
			Timeout:      conf.Timeout.Std(),
			UserAgent:    userAgent,
		}), nil
	default:
		return nil, fmt.Errorf("unknown identity provider driver %q", conf.Driver)
	}
}

// NewTransport builds the configured event transport. rdb is required by
// the redis driver.
func NewTransport(conf config.Events, rdb *redis.Client, logger *zap.Logger) (messaging.Transport, error) {
	switch conf.Driver {
	case "log":
		return messaging.NewLogTransport(logger), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis event driver requires server.redisAddr")
		}
		return messaging.NewRedisTransport(rdb, conf.StreamMaxLen), nil
	case "kafka":
		return messaging.NewKafkaTransport(conf.KafkaBrokers...), nil
	case "amqp":
		return messaging.DialAMQP(conf.AMQPURL, conf.Exchange)
	default:
		return nil, fmt.Errorf("unknown event driver %q", conf.Driver)
	}
}

func NewPublisher(transport messaging.Transport, conf config.Events, logger *zap.Logger) *messaging.Publisher {
	return messaging.NewPublisher(transport, logger, conf.AsyncTimeout.Std())
}

func NewRegistrationUsecase(
	conf config.Registration,
	stores Stores,
	idp IdentityProvider,
	publisher *messaging.Publisher,
	logger *zap.Logger,
) (*usecase.RegistrationUsecase, error) {
	hooks, err := application.NewHooks(conf.Domain, publisher, logger)
	if err != nil {
		return nil, err
	}
	return usecase.NewRegistrationUsecase(
		hooks,
		idp,
		stores.Users,
		stores.Profiles,
		stores.Tx,
		publisher,
		logger,
		usecase.RegistrationOptions{
			Topic:               conf.Topic,
			ProviderTimeout:     conf.ProviderTimeout.Std(),
			PersistenceTimeout:  conf.PersistenceTimeout.Std(),
			HookTimeout:         conf.HookTimeout.Std(),
			PublishTimeout:      conf.PublishTimeout.Std(),
			CompensationTimeout: conf.CompensationTimeout.Std(),
		},
	), nil
}

func NewAccountUsecase(stores Stores, idp IdentityProvider, logger *zap.Logger) *usecase.AccountUsecase {
	return usecase.NewAccountUsecase(stores.Users, stores.Profiles, stores.Tx, idp, logger)
}

// Container holds the fully wired service.
type Container struct {
	Registration *usecase.RegistrationUsecase
	Account      *usecase.AccountUsecase
	Publisher    *messaging.Publisher
	Feed         *messaging.RedisFeed
	Topic        string

	idp     IdentityProvider
	closers []func() error
}

// Build wires every component from conf.
func Build(ctx context.Context, conf config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Topic: conf.Registration.Topic}

	var db *gorm.DB
	if conf.Database.Driver == "postgres" {
		var err error
		db, err = NewDatabase(conf.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			c.closers = append(c.closers, sqlDB.Close)
		}
	}

	stores, err := NewStores(conf.Database, db, NewMemcache(conf.Server.MemcachedAddr), logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	idp, err := NewIdentityProvider(ctx, conf.IdentityProvider, conf.Service.Name+"/"+conf.Service.Version)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.idp = idp

	rdb := NewRedis(conf.Server)
	transport, err := NewTransport(conf.Events, rdb, logger)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		c.Close()
		return nil, err
	}
	if rdb != nil && conf.Events.Driver == "redis" {
		c.Feed = messaging.NewRedisFeed(rdb, 5*time.Second)
	} else if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	c.Publisher = NewPublisher(transport, conf.Events, logger)
	c.closers = append(c.closers, c.Publisher.Close)

	c.Registration, err = NewRegistrationUsecase(conf.Registration, stores, idp, c.Publisher, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Account = NewAccountUsecase(stores, idp, logger)
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
