// Package config loads the sniper configuration from YAML, .env and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-sniper/internal/logging"
)

// Gateway modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Discovery sources.
const (
	SourceSimulated = "simulated"
	SourceLaunches  = "launches"
)

// Config is the full process configuration.
type Config struct {
	Mode string `yaml:"mode" default:"paper" validate:"oneof=paper live"`

	Engine struct {
		PrivateKey     string        `yaml:"private_key"`
		Network        string        `yaml:"network" default:"devnet" validate:"required"`
		SnipeAmount    string        `yaml:"snipe_amount" default:"0.01" validate:"required,numeric"`
		AutoStart      bool          `yaml:"auto_start"`
		MinInterval    time.Duration `yaml:"min_interval" default:"5s" validate:"gt=0"`
		Jitter         time.Duration `yaml:"jitter" default:"10s" validate:"gte=0"`
		BalanceRunning time.Duration `yaml:"balance_running_interval" default:"5s" validate:"gt=0"`
		BalanceStopped time.Duration `yaml:"balance_stopped_interval" default:"10s" validate:"gt=0"`
		TxTimeout      time.Duration `yaml:"tx_timeout" default:"30s" validate:"gt=0"`
		LogCapacity    int           `yaml:"log_capacity" default:"500" validate:"gt=0"`
	} `yaml:"engine"`

	Gateway struct {
		SkipPreflight bool          `yaml:"skip_preflight"`
		FillDelay     time.Duration `yaml:"fill_delay" default:"1500ms"`
		// Destination receives live purchases; empty pays the candidate address.
		Destination string `yaml:"destination"`
	} `yaml:"gateway"`

	Discovery struct {
		Source     string   `yaml:"source" default:"simulated" validate:"oneof=simulated launches"`
		WSEndpoint string   `yaml:"ws_endpoint"`
		Programs   []string `yaml:"programs"`
		Symbols    []string `yaml:"symbols"`
		BufferSize int      `yaml:"buffer_size" default:"64" validate:"gt=0"`
	} `yaml:"discovery"`

	Server struct {
		Addr            string        `yaml:"addr" default:":8080" validate:"required"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled" default:"true"`
		Namespace string `yaml:"namespace" default:"solana_sniper"`
	} `yaml:"metrics"`

	Log logging.Config `yaml:"log"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	ClickHouse struct {
		DSN string `yaml:"dsn"`
	} `yaml:"clickhouse"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		SeenTTL  time.Duration `yaml:"seen_ttl" default:"24h"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic" default:"sniper.events"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads path, applies defaults and validates. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (when present), then path, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadDotEnv loads ./.env without overriding variables already set.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment via lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("SNIPER_MODE", &c.Mode)
	str("SNIPER_PRIVATE_KEY", &c.Engine.PrivateKey)
	str("SNIPER_NETWORK", &c.Engine.Network)
	str("SNIPER_SNIPE_AMOUNT", &c.Engine.SnipeAmount)
	str("SNIPER_DISCOVERY_SOURCE", &c.Discovery.Source)
	str("SOLANA_WS_ENDPOINT", &c.Discovery.WSEndpoint)
	str("SNIPER_HTTP_ADDR", &c.Server.Addr)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("CLICKHOUSE_DSN", &c.ClickHouse.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("LOG_LEVEL", &c.Log.Level)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)

	if v, ok := lookup("SNIPER_AUTO_START"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SNIPER_AUTO_START: %w", err)
		}
		c.Engine.AutoStart = b
	}
	if v, ok := lookup("TX_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TX_TIMEOUT: %w", err)
		}
		c.Engine.TxTimeout = d
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.AutoStart && c.Engine.PrivateKey == "" {
		return fmt.Errorf("engine.private_key is required with engine.auto_start")
	}
	return nil
}

// String renders the config for logging with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Engine.PrivateKey != "" {
		masked.Engine.PrivateKey = "***"
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	masked.Postgres.DSN = maskDSN(masked.Postgres.DSN)
	masked.ClickHouse.DSN = maskDSN(masked.ClickHouse.DSN)
	b, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maskDSN hides the userinfo of a URL-style DSN.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
