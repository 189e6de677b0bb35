// Package config loads server settings from defaults, an optional .env file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mmynk/chamaledger/internal/schedule"
)

// Config holds everything the server needs at startup.
type Config struct {
	Addr      string
	DBPath    string
	JWTSecret string
	TokenTTL  time.Duration
	LogLevel  string

	// KafkaBrokers is empty when event publishing is disabled.
	KafkaBrokers []string
	KafkaTopic   string

	// DayOverflow is the policy for due days past the end of a month:
	// "rollover" or "clamp".
	DayOverflow string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:        ":8080",
		DBPath:      "./data/chama.db",
		TokenTTL:    24 * time.Hour,
		LogLevel:    "info",
		KafkaTopic:  "chama.ledger",
		DayOverflow: schedule.Rollover.String(),
	}
}

// Load builds a Config. A missing .env file is not an error.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CHAMA_ADDR", &c.Addr)
	str("DB_PATH", &c.DBPath)
	str("JWT_SECRET", &c.JWTSecret)
	str("LOG_LEVEL", &c.LogLevel)
	str("KAFKA_TOPIC", &c.KafkaTopic)
	str("DAY_OVERFLOW", &c.DayOverflow)

	if v, ok := lookup("TOKEN_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL %q: %w", v, err)
		}
		c.TokenTTL = ttl
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.KafkaBrokers = splitList(v)
	}
	return nil
}

func (c *Config) applyFlags(args []string) error {
	flagSet := pflag.NewFlagSet("chamaledger", pflag.ContinueOnError)
	flagSet.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	flagSet.StringVar(&c.DBPath, "db", c.DBPath, "path to the SQLite database file")
	flagSet.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "secret used to sign access tokens")
	flagSet.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "access token lifetime")
	flagSet.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	flagSet.StringSliceVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Kafka bootstrap brokers; empty disables publishing")
	flagSet.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "topic for ledger events")
	flagSet.StringVar(&c.DayOverflow, "day-overflow", c.DayOverflow, "rollover or clamp for due days past month end")

	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	if _, err := schedule.ParseDayOverflow(c.DayOverflow); err != nil {
		return err
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// ScheduleOptions returns the projector options implied by the config.
func (c Config) ScheduleOptions() schedule.Options {
	policy, _ := schedule.ParseDayOverflow(c.DayOverflow)
	return schedule.Options{DayOverflow: policy}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
