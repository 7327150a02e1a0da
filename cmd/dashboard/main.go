// cmd/dashboard runs a headless indicator dashboard against the gateway.
//
// It streams snapshots for one symbol/interval, lays them out per the panel
// preset and renders frames onto an in-memory surface. Controls are read as
// line commands from stdin:
//
//	symbol ETHUSDT       switch symbol
//	interval 4h          switch bar interval
//	grid on|off          toggle grid lines (SIGHUP toggles too)
//	set {"rsi_period1":24}
//	resize 1600 900
//	hover 640 300        move the crosshair to a pixel
//	leave                hide the crosshair
package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"indicator-dashboardv1/config"
	"indicator-dashboardv1/internal/chart/preset"
	"indicator-dashboardv1/internal/chart/session"
	"indicator-dashboardv1/internal/chart/surface"
	"indicator-dashboardv1/internal/feed"
	"indicator-dashboardv1/internal/logger"
	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/notification"
	"indicator-dashboardv1/internal/settings"
)

const (
	surfaceWidth  = 1280
	surfaceHeight = 900
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("dashboard", logger.Options{Level: logger.ParseLevel(cfg.LogLevel), File: cfg.LogFile})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	prom := metrics.New(reg)
	metricsSrv := metrics.NewServer(cfg.DashboardMetrics, reg, log)
	metricsSrv.Start()

	p, err := preset.Load(cfg.PanelPreset)
	if err != nil {
		log.Error("panel preset", "error", err)
		os.Exit(1)
	}
	registry, err := p.Registry()
	if err != nil {
		log.Error("panel registry", "error", err)
		os.Exit(1)
	}

	settingsClient, err := settings.NewClient(cfg.ConfigURL, settings.Options{}, log)
	if err != nil {
		log.Error("settings client", "error", err)
		os.Exit(1)
	}

	notifier := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.NotifyWebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}

	canvas := surface.New(surfaceWidth, surfaceHeight)

	// The transport needs the loop for its callbacks and the session needs
	// the transport, so the loop is bound after both exist.
	var loop *session.Loop
	transport, err := feed.New(feed.Config{URL: cfg.FeedURL},
		func(snap *model.Snapshot) {
			loop.Do(func(s *session.Session) {
				before := canvas.Renders()
				if err := s.ApplySnapshot(snap); err != nil {
					prom.RejectedSnapshots.Inc()
					return
				}
				if n := canvas.Renders() - before; n > 0 {
					prom.FramesRendered.Add(float64(n))
					log.Debug("frame rendered", "symbol", snap.Symbol, "price", snap.Price, "bars", snap.Len(), "zone", s.ZoneLabel())
				}
			})
		},
		func(st feed.Status, err error) {
			if st == feed.StatusDisconnected {
				prom.FeedReconnects.Inc()
			}
			loop.Do(func(s *session.Session) { s.OnTransportStatus(st == feed.StatusConnected, err) })
		},
		log)
	if err != nil {
		log.Error("feed client", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	sess := session.New(session.Options{
		Surface:        canvas,
		Registry:       registry,
		CrosshairStyle: p.CrosshairStyle(),
		Transport:      transport,
		Settings:       settingsClient,
		Notifier:       notifier,
		Logger:         log,
		Symbol:         cfg.DashboardSymbol,
		Interval:       cfg.DashboardInterval,
		Width:          surfaceWidth,
		Height:         surfaceHeight,
		GridLines:      true,
	})
	loop = session.NewLoop(sess, 0)
	loop.Do(func(s *session.Session) { s.Connect() })

	log.Info("dashboard started",
		"feed", cfg.FeedURL,
		"symbol", cfg.DashboardSymbol,
		"interval", cfg.DashboardInterval,
		"panels", len(p.Descriptors()))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				// Read the state on the loop so a stdin "grid off" is seen.
				loop.Do(func(s *session.Session) { s.OnGridLinesToggled(!s.GridLines()) })
			}
		}
	}()
	go readCommands(ctx, loop, log)

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("session loop", "error", err)
	}

	log.Info("shutdown signal received, cleaning up")
	sess.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Info("shutdown complete")
}

// readCommands turns stdin lines into session events until EOF.
func readCommands(ctx context.Context, loop *session.Loop, log *slog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "":
		case "symbol":
			loop.Do(func(s *session.Session) { s.OnSymbolChanged(arg) })
		case "interval":
			loop.Do(func(s *session.Session) { s.OnIntervalChanged(arg) })
		case "grid":
			show := arg != "off"
			loop.Do(func(s *session.Session) { s.OnGridLinesToggled(show) })
		case "set":
			patch := []byte(arg)
			loop.Do(func(s *session.Session) {
				s.UpdateSettings(patch, func(cfg model.IndicatorConfig, err error) {
					if err != nil {
						log.Warn("settings update failed", "error", err)
						return
					}
					log.Info("settings updated", "config", cfg)
				})
			})
		case "resize":
			w, h, ok := pair(arg)
			if !ok {
				log.Warn("usage: resize W H")
				continue
			}
			loop.PostResize(w, h)
		case "hover":
			x, y, ok := pair(arg)
			if !ok {
				log.Warn("usage: hover X Y")
				continue
			}
			loop.Do(func(s *session.Session) {
				st := s.PointerMove(x, y)
				log.Info("crosshair", "state", st)
			})
		case "leave":
			loop.Do(func(s *session.Session) { s.PointerLeave() })
		default:
			log.Warn("unknown command", "command", cmd)
		}
	}
}

func pair(s string) (float64, float64, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.ParseFloat(fields[0], 64)
	b, err2 := strconv.ParseFloat(fields[1], 64)
	return a, b, err1 == nil && err2 == nil
}
