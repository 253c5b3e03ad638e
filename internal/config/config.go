package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Service          Service          `yaml:"service"`
	Registration     Registration     `yaml:"registration"`
	IdentityProvider IdentityProvider `yaml:"identityProvider"`
	Events           Events           `yaml:"events"`
	Database         Database         `yaml:"database"`
	Server           Server           `yaml:"server"`
	Log              Log              `yaml:"log"`
}

type Service struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Registration struct {
	Domain              string   `yaml:"domain"` // customer, patient, student
	Topic               string   `yaml:"topic"`
	ProviderTimeout     Duration `yaml:"providerTimeout"`
	PersistenceTimeout  Duration `yaml:"persistenceTimeout"`
	HookTimeout         Duration `yaml:"hookTimeout"`
	PublishTimeout      Duration `yaml:"publishTimeout"`
	CompensationTimeout Duration `yaml:"compensationTimeout"`
}

type IdentityProvider struct {
	Driver       string   `yaml:"driver"` // http, memory
	BaseURL      string   `yaml:"baseURL"`
	Connection   string   `yaml:"connection"`
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	TokenURL     string   `yaml:"tokenURL"`
	Audience     string   `yaml:"audience"`
	Timeout      Duration `yaml:"timeout"`
	BcryptCost   int      `yaml:"bcryptCost"`
}

type Events struct {
	Driver       string   `yaml:"driver"` // redis, kafka, amqp, log
	KafkaBrokers []string `yaml:"kafkaBrokers"`
	AMQPURL      string   `yaml:"amqpURL"`
	Exchange     string   `yaml:"exchange"`
	StreamMaxLen int64    `yaml:"streamMaxLen"`
	AsyncTimeout Duration `yaml:"asyncTimeout"`
}

type Database struct {
	Driver string `yaml:"driver"` // postgres, memory
	DSN    string `yaml:"dsn"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Duration is a time.Duration written as "10s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default() Config {
	return Config{
		Service: Service{Name: "concrnt-identity", Version: "dev"},
		Registration: Registration{
			Domain:              "customer",
			Topic:               "registration-events",
			ProviderTimeout:     Duration(10 * time.Second),
			PersistenceTimeout:  Duration(10 * time.Second),
			HookTimeout:         Duration(10 * time.Second),
			PublishTimeout:      Duration(5 * time.Second),
			CompensationTimeout: Duration(15 * time.Second),
		},
		IdentityProvider: IdentityProvider{
			Driver:  "memory",
			Timeout: Duration(10 * time.Second),
		},
		Events: Events{
			Driver:       "log",
			Exchange:     "identity",
			StreamMaxLen: 10000,
			AsyncTimeout: Duration(5 * time.Second),
		},
		Database: Database{Driver: "memory"},
		Server:   Server{Listen: ":8000"},
		Log:      Log{Level: "info"},
	}
}

// Load reads the YAML file at path on top of Default. A .env file next to
// the process is loaded first; secrets in the environment win over the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	config := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IDP_CLIENT_SECRET"); v != "" {
		c.IdentityProvider.ClientSecret = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Server.RedisAddr = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	}
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.IdentityProvider.Driver {
	case "memory":
	case "http":
		if c.IdentityProvider.BaseURL == "" {
			return fmt.Errorf("identityProvider.baseURL is required for the http driver")
		}
	default:
		return fmt.Errorf("unknown identity provider driver %q", c.IdentityProvider.Driver)
	}

	switch c.Events.Driver {
	case "log":
	case "redis":
		if c.Server.RedisAddr == "" {
			return fmt.Errorf("server.redisAddr is required for the redis event driver")
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events.kafkaBrokers is required for the kafka event driver")
		}
	case "amqp":
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("events.amqpURL is required for the amqp event driver")
		}
	default:
		return fmt.Errorf("unknown event driver %q", c.Events.Driver)
	}

	if c.Registration.Domain == "" {
		return fmt.Errorf("registration.domain is required")
	}
	return nil
}
