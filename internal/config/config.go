package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. RECERTIFY_HTTP_ADDR.
const Prefix = "RECERTIFY"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:""`

	Env    string `envconfig:"ENV" default:"dev"` // "dev" | "prod"
	Store  string `envconfig:"STORE" default:"memory"`
	DBPath string `envconfig:"DB_PATH" default:"./data/recertify.db"`

	// SourceFile is a YAML/JSON entitlement export.  Empty means the built-in
	// sample data set is loaded in dev.
	SourceFile string `envconfig:"SOURCE_FILE"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	ReviewInterval time.Duration `envconfig:"REVIEW_INTERVAL" default:"24h"`
	Lookahead      time.Duration `envconfig:"LOOKAHEAD" default:"168h"`
	RunOnStart     bool          `envconfig:"RUN_ON_START" default:"true"`
	ReviewBaseURL  string        `envconfig:"REVIEW_BASE_URL" default:"http://localhost:5000"`

	Delivery             string `envconfig:"DELIVERY" default:"log"`
	WebhookURL           string `envconfig:"WEBHOOK_URL"`
	WebhookToken         string `envconfig:"WEBHOOK_TOKEN"`
	WebhookRatePerMinute int    `envconfig:"WEBHOOK_RATE_PER_MINUTE" default:"60"`
	DiscordToken         string `envconfig:"DISCORD_TOKEN"`
	DiscordChannelID     string `envconfig:"DISCORD_CHANNEL_ID"`

	// RedisAddr enables the cross-replica run lock and is required by the
	// queue delivery mode.
	RedisAddr  string        `envconfig:"REDIS_ADDR"`
	RunLockTTL time.Duration `envconfig:"RUN_LOCK_TTL" default:"10m"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// Load reads an optional .env file, then the process environment.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Delivery = strings.ToLower(strings.TrimSpace(c.Delivery))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

func (c Config) Validate() error {
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%s_STORE: unknown store %q", Prefix, c.Store)
	}

	switch c.Delivery {
	case "log":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("%s_WEBHOOK_URL is required for webhook delivery", Prefix)
		}
	case "queue":
		if c.RedisAddr == "" {
			return fmt.Errorf("%s_REDIS_ADDR is required for queue delivery", Prefix)
		}
	case "discord":
		if c.DiscordToken == "" || c.DiscordChannelID == "" {
			return fmt.Errorf("%s_DISCORD_TOKEN and %s_DISCORD_CHANNEL_ID are required for discord delivery", Prefix, Prefix)
		}
	default:
		return fmt.Errorf("%s_DELIVERY: unknown mode %q", Prefix, c.Delivery)
	}

	if c.ReviewInterval <= 0 {
		return fmt.Errorf("%s_REVIEW_INTERVAL must be positive", Prefix)
	}
	if c.Lookahead < 0 {
		return fmt.Errorf("%s_LOOKAHEAD must not be negative", Prefix)
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Env == "prod" }
