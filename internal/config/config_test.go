package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/chamaledger/internal/schedule"
)

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DAY_OVERFLOW", "clamp")

	cfg, err := Load([]string{"--db", "/tmp/flag.db", "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "/tmp/flag.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, schedule.Clamp, cfg.ScheduleOptions().DayOverflow)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("bad ttl", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("TOKEN_TTL", "soon")
		_, err := Load(nil)
		assert.Error(t, err)
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s")
		_, err := Load([]string{"--port", "1"})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.JWTSecret = "secret"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with secret", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, true},
		{"bad overflow", func(c *Config) { c.DayOverflow = "wrap" }, true},
		{"brokers without topic", func(c *Config) { c.KafkaBrokers = []string{"k:9092"}; c.KafkaTopic = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
