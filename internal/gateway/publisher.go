package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/snapshot"
)

const (
	// Snapshots cover a week of history, enough for the 168h periods.
	historyDays     = 7
	DefaultSchedule = "@every 1s"
	publishTimeout  = 5 * time.Second
)

var errNoHistory = errors.New("no candles")

// Publisher periodically builds a snapshot for every watched topic and
// broadcasts it.
type Publisher struct {
	hub     *Hub
	candles model.CandleSource
	prices  model.PriceSource // may be nil
	configs *ConfigService
	builder *snapshot.Builder
	builds  *BuildTimes
	metrics *metrics.Metrics      // may be nil
	health  *metrics.HealthStatus // may be nil
	log     *slog.Logger

	cron *cron.Cron
}

// PublisherOptions bundles the optional collaborators.
type PublisherOptions struct {
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Builds  *BuildTimes
	Prices  model.PriceSource
	Logger  *slog.Logger
}

// NewPublisher wires a publisher. Call Start to schedule it.
func NewPublisher(hub *Hub, candles model.CandleSource, configs *ConfigService, builder *snapshot.Builder, opts PublisherOptions) *Publisher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	builds := opts.Builds
	if builds == nil {
		builds = NewBuildTimes(0)
	}
	return &Publisher{
		hub:     hub,
		candles: candles,
		prices:  opts.Prices,
		configs: configs,
		builder: builder,
		builds:  builds,
		metrics: opts.Metrics,
		health:  opts.Health,
		log:     log.With("component", "publisher"),
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start schedules PublishOnce on spec (a seconds-enabled cron spec such as
// "@every 1s"). Runs are skipped while the previous one is still going.
func (p *Publisher) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		p.PublishOnce(ctx)
	}))
	if _, err := p.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("publisher: schedule %q: %w", spec, err)
	}
	p.cron.Start()
	p.log.Info("publisher started", "schedule", spec)
	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (p *Publisher) Stop() {
	<-p.cron.Stop().Done()
	p.log.Info("publisher stopped")
}

// PublishOnce builds and broadcasts one snapshot per watched topic.
// It returns the number of snapshots broadcast.
func (p *Publisher) PublishOnce(ctx context.Context) int {
	topics := p.hub.Topics()
	keys := make([]string, len(topics))
	published := 0
	for i, t := range topics {
		keys[i] = t.Key()
		if ctx.Err() != nil {
			break
		}
		err := p.publish(ctx, t)
		if errors.Is(err, errNoHistory) {
			p.log.Debug("no candles yet", "topic", t.Key())
			continue
		}
		if err != nil {
			p.log.Warn("publish failed", "topic", t.Key(), "error", err)
			if p.metrics != nil {
				p.metrics.SnapshotErrors.WithLabelValues(t.Key()).Inc()
			}
			continue
		}
		published++
	}
	p.builds.Retain(keys)
	if p.health != nil {
		sum := p.builds.Summary()
		p.health.SetPublish(p.hub.ClientCount(), len(topics), sum.P50, sum.P95, sum.P99)
		p.health.SetSlowestBuild(sum.Slowest, sum.SlowestMs)
	}
	return published
}

func (p *Publisher) publish(ctx context.Context, t Topic) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()

	n, err := model.CandlesForDays(historyDays, t.Interval)
	if err != nil {
		return err
	}
	candles, err := p.candles.LatestCandles(ctx, t.Symbol, t.Interval, n)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return errNoHistory
	}
	cfg, err := p.configs.Get(ctx, t.Symbol)
	if err != nil {
		return err
	}
	snap, err := p.builder.Build(t.Symbol, t.Interval, candles, cfg)
	if err != nil {
		return err
	}
	if p.prices != nil {
		// Without a recent trade the newest close stands in.
		px, ok, err := p.prices.LastPrice(ctx, t.Symbol)
		switch {
		case err != nil:
			p.log.Debug("live price unavailable", "symbol", t.Symbol, "error", err)
		case ok:
			snap.Price = px
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	took := time.Since(start)
	p.builds.Add(t.Key(), took)
	if p.metrics != nil {
		p.metrics.SnapshotBuildDur.Observe(took.Seconds())
		p.metrics.SnapshotsBuilt.WithLabelValues(t.Key()).Inc()
	}
	p.hub.Broadcast(t, data)
	return nil
}
