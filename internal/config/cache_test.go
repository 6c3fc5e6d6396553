package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheConfigDefaultTTLIsShort(t *testing.T) {
	t.Setenv("CACHE_TTL", "")

	cfg := LoadCacheConfig()

	assert.Equal(t, 5*time.Second, cfg.TTL)
	assert.LessOrEqual(t, cfg.TTL, 10*time.Second,
		"cached listings expose remaining quantities and must not outlive a booking for long")
}

func TestCacheConfigTTLOverride(t *testing.T) {
	t.Setenv("CACHE_TTL", "2s")

	assert.Equal(t, 2*time.Second, LoadCacheConfig().TTL)
}

func TestCacheConfigMethodsUpperCased(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")

	cfg := LoadCacheConfig()

	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
}
