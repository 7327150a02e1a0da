package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"indicator-dashboardv1/internal/model"
)

// ConfigCache caches indicator configs under "config:<symbol>". Every call
// goes through the breaker.
type ConfigCache struct {
	client goredis.Cmdable
	cb     *CircuitBreaker
}

// NewConfigCache wraps an open client and breaker.
func NewConfigCache(client goredis.Cmdable, cb *CircuitBreaker) *ConfigCache {
	return &ConfigCache{client: client, cb: cb}
}

func configKey(symbol string) string { return "config:" + symbol }

// Get returns ok=false on a miss. An open breaker returns ErrCircuitOpen.
func (c *ConfigCache) Get(ctx context.Context, symbol string) (model.IndicatorConfig, bool, error) {
	var raw string
	err := c.cb.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, configKey(symbol)).Result()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return model.IndicatorConfig{}, false, nil
	}
	if err != nil {
		return model.IndicatorConfig{}, false, fmt.Errorf("redis get config %s: %w", symbol, err)
	}

	cfg := model.DefaultIndicatorConfig()
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.IndicatorConfig{}, false, fmt.Errorf("redis decode config %s: %w", symbol, err)
	}
	return cfg, true, nil
}

// Set stores cfg for ttl.
func (c *ConfigCache) Set(ctx context.Context, symbol string, cfg model.IndicatorConfig, ttl time.Duration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("redis encode config %s: %w", symbol, err)
	}
	err = c.cb.Execute(func() error {
		return c.client.Set(ctx, configKey(symbol), data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set config %s: %w", symbol, err)
	}
	return nil
}

// Delete drops the cached config.
func (c *ConfigCache) Delete(ctx context.Context, symbol string) error {
	err := c.cb.Execute(func() error {
		return c.client.Del(ctx, configKey(symbol)).Err()
	})
	if err != nil {
		return fmt.Errorf("redis delete config %s: %w", symbol, err)
	}
	return nil
}
