package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "france", cfg.DefaultRegion)
	assert.Equal(t, 120*time.Second, cfg.CountdownDuration)
	assert.Equal(t, 20*time.Second, cfg.SuccessScreenDelay)
	assert.Equal(t, "memory", cfg.SessionStore)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_REGION", "Martinique")
	t.Setenv("COUNTDOWN_DURATION", "240s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "martinique", cfg.DefaultRegion)
	assert.Equal(t, 240*time.Second, cfg.CountdownDuration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.RateLimitPerSecond)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("COUNTDOWN_DURATION", "not-a-duration")
	t.Setenv("RATE_LIMIT_BURST", "many")

	cfg := Load()

	assert.Equal(t, 120*time.Second, cfg.CountdownDuration)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}
