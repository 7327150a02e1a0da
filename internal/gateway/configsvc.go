package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/store/sqlite"
)

const defaultCacheTTL = 5 * time.Minute

// ConfigService reads configs through the cache and writes them to the
// store. Cache failures are logged and never fail a request.
type ConfigService struct {
	store model.ConfigStore
	cache model.ConfigCache // may be nil
	ttl   time.Duration
	log   *slog.Logger
}

// NewConfigService wires a store and an optional cache.
func NewConfigService(store model.ConfigStore, cache model.ConfigCache, ttl time.Duration, log *slog.Logger) *ConfigService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConfigService{store: store, cache: cache, ttl: ttl, log: log.With("component", "config-service")}
}

// Get returns the config for symbol, or the defaults if none is stored.
func (s *ConfigService) Get(ctx context.Context, symbol string) (model.IndicatorConfig, error) {
	if s.cache != nil {
		cfg, ok, err := s.cache.Get(ctx, symbol)
		if err != nil {
			s.log.Debug("cache read failed", "symbol", symbol, "error", err)
		} else if ok {
			return cfg, nil
		}
	}

	cfg, err := s.store.LoadConfig(ctx, symbol)
	if errors.Is(err, sqlite.ErrNotFound) {
		return model.DefaultIndicatorConfig(), nil
	}
	if err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("config service: get %s: %w", symbol, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, symbol, cfg, s.ttl); err != nil {
			s.log.Debug("cache write failed", "symbol", symbol, "error", err)
		}
	}
	return cfg, nil
}

// Update merges patch into the current config, validates and persists it.
// Invalid patches return an error wrapping model.ErrInvalidConfig.
func (s *ConfigService) Update(ctx context.Context, symbol string, patch []byte) (model.IndicatorConfig, error) {
	current, err := s.Get(ctx, symbol)
	if err != nil {
		return model.IndicatorConfig{}, err
	}
	next, err := current.Merge(patch)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("config service: update %s: %w", symbol, err)
	}
	if err := s.store.SaveConfig(ctx, symbol, next); err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("config service: update %s: %w", symbol, err)
	}

	// The next publish must not see the old config.
	if s.cache != nil {
		if err := s.cache.Delete(ctx, symbol); err != nil {
			s.log.Warn("cache invalidation failed", "symbol", symbol, "error", err)
		}
	}
	s.log.Info("config updated", "symbol", symbol)
	return next, nil
}
