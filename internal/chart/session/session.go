// Package session orchestrates one dashboard: it owns the panel registry,
// the crosshair coordinator and the tooltip aggregator, applies snapshots to
// the rendering surface, and reacts to user controls.
//
// All Session methods must run on one goroutine (see Loop). Network work is
// done off-loop and its result is posted back.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/chart/crosshair"
	"indicator-dashboardv1/internal/chart/indexmap"
	"indicator-dashboardv1/internal/chart/panel"
	"indicator-dashboardv1/internal/chart/series"
	"indicator-dashboardv1/internal/chart/tooltip"
	"indicator-dashboardv1/internal/chart/zone"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/notification"
)

const (
	zoneLabelID      = "zone-label"
	zoneLabelOffsetX = 15
	zoneLabelOffsetY = -20
	settingsTimeout  = 10 * time.Second
)

// Transport is the streaming connection. Reconnect must not block.
type Transport interface {
	Reconnect(symbol, interval string)
}

// Settings is the config service.
type Settings interface {
	Get(ctx context.Context, symbol string) (model.IndicatorConfig, error)
	Update(ctx context.Context, symbol string, patch []byte) (model.IndicatorConfig, error)
}

// Resizer is implemented by surfaces that track their own size.
type Resizer interface {
	SetSize(width, height float64)
}

// Options configures a Session.
type Options struct {
	Surface        chart.Surface
	Registry       *panel.Registry
	CrosshairStyle chart.Style
	Transport      Transport
	Settings       Settings
	Notifier       notification.Notifier
	Logger         *slog.Logger
	Symbol         string
	Interval       string
	Width          float64
	Height         float64
	GridLines      bool
}

// Session is one dashboard instance.
type Session struct {
	surface   chart.Surface
	registry  *panel.Registry
	crosshair *crosshair.Coordinator
	tooltip   *tooltip.Aggregator
	transport Transport
	settings  Settings
	notifier  notification.Notifier
	log       *slog.Logger

	symbol    string
	interval  string
	width     float64
	height    float64
	gridLines bool

	snapshot  *model.Snapshot
	frame     *chart.Frame
	config    model.IndicatorConfig
	zoneLabel string

	post    func(func())
	pending sync.WaitGroup
}

// New creates a session. Until a Loop adopts it, results of background work
// are applied on the goroutine that produced them.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "session")
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notification.NewLogNotifier(log)
	}
	s := &Session{
		surface:   opts.Surface,
		registry:  opts.Registry,
		transport: opts.Transport,
		settings:  opts.Settings,
		notifier:  notifier,
		log:       log,
		symbol:    opts.Symbol,
		interval:  opts.Interval,
		width:     opts.Width,
		height:    opts.Height,
		gridLines: opts.GridLines,
		config:    model.DefaultIndicatorConfig(),
		post:      func(fn func()) { fn() },
	}
	if s.registry == nil {
		s.registry = panel.NewRegistry(panel.DefaultGeometry())
	}
	s.tooltip = tooltip.New(opts.Surface)
	s.crosshair = crosshair.New(opts.Surface, s.tooltip, opts.CrosshairStyle, log)
	s.crosshair.Bind(s.registry.ComputeLayout(s.height), s.registry.Version())
	return s
}

// Connect loads the settings of the current symbol and opens the transport.
func (s *Session) Connect() {
	s.loadSettings(s.symbol)
	s.reconnect()
}

// ApplySnapshot renders a new snapshot. A malformed snapshot is skipped and
// the previous render stays on screen.
func (s *Session) ApplySnapshot(snap *model.Snapshot) error {
	if err := snap.Validate(); err != nil {
		s.log.Warn("snapshot skipped", "symbol", s.symbol, "interval", s.interval, "error", err)
		s.notify(notification.Alert{
			Level:    notification.AlertWarning,
			Kind:     notification.KindSnapshotReject,
			Title:    "snapshot skipped",
			Message:  err.Error(),
			Symbol:   s.symbol,
			Interval: s.interval,
		})
		return err
	}
	// A snapshot for the previous key can still be in flight after a switch.
	if snap.Symbol != "" && s.symbol != "" && snap.Symbol != s.symbol {
		s.log.Debug("stale snapshot dropped", "got", snap.Symbol, "want", s.symbol)
		return nil
	}
	if snap.Interval != "" && s.interval != "" && snap.Interval != s.interval {
		s.log.Debug("stale snapshot dropped", "got", snap.Interval, "want", s.interval)
		return nil
	}
	s.snapshot = snap
	s.render()
	return nil
}

// AddPanel registers a panel, recomputes the layout and rebinds the
// crosshair.
func (s *Session) AddPanel(d panel.Descriptor) error {
	if _, err := s.registry.Add(d); err != nil {
		return err
	}
	if s.snapshot != nil {
		s.render()
		return nil
	}
	s.crosshair.Bind(s.registry.ComputeLayout(s.height), s.registry.Version())
	return nil
}

// Resize recomputes the layout for a new surface size and re-renders the
// last frame with the new bands.
func (s *Session) Resize(width, height float64) {
	s.width, s.height = width, height
	if r, ok := s.surface.(Resizer); ok {
		r.SetSize(width, height)
	}
	bands := s.registry.ComputeLayout(height)
	if s.frame != nil {
		f := *s.frame
		f.Bands = bands
		s.surface.Render(f)
		s.frame = &f
		s.updateZoneLabel()
	}
	s.crosshair.Bind(bands, s.registry.Version())
}

// PointerMove forwards a pointer position to the crosshair.
func (s *Session) PointerMove(px, py float64) crosshair.State {
	return s.crosshair.PointerMove(px, py)
}

// PointerLeave forwards a pointer-leave to the crosshair.
func (s *Session) PointerLeave() {
	s.crosshair.PointerLeave()
}

// OnSymbolChanged switches to a new symbol: data is cleared, its settings
// are loaded and the transport reconnects.
func (s *Session) OnSymbolChanged(symbol string) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" || symbol == s.symbol {
		return
	}
	s.log.Info("symbol changed", "from", s.symbol, "to", symbol)
	s.symbol = symbol
	s.clearData()
	s.loadSettings(symbol)
	s.reconnect()
}

// OnIntervalChanged switches to a new bar interval.
func (s *Session) OnIntervalChanged(interval string) {
	if interval == s.interval {
		return
	}
	if _, err := model.IntervalMinutes(interval); err != nil {
		s.log.Warn("interval ignored", "interval", interval, "error", err)
		return
	}
	s.log.Info("interval changed", "from", s.interval, "to", interval)
	s.interval = interval
	s.clearData()
	s.reconnect()
}

// OnGridLinesToggled shows or hides grid lines.
func (s *Session) OnGridLinesToggled(show bool) {
	s.gridLines = show
	if s.frame == nil {
		return
	}
	f := *s.frame
	f.GridLines = show
	s.surface.Render(f)
	s.frame = &f
}

// OnTransportStatus surfaces a connection-state change. Disconnects are
// informational; the transport retries on its own.
func (s *Session) OnTransportStatus(connected bool, err error) {
	a := notification.Alert{
		Level:     notification.AlertInfo,
		Kind:      notification.KindConnection,
		Title:     "connected",
		Symbol:    s.symbol,
		Interval:  s.interval,
		Connected: connected,
	}
	if !connected {
		a.Level = notification.AlertWarning
		a.Title = "disconnected, retrying"
		if err != nil {
			a.Message = err.Error()
		}
	}
	s.notify(a)
}

// UpdateSettings persists a partial config for the current symbol. On
// success the new config is kept and the transport reconnects; on failure the
// user is notified and local state is left as is. done, if set, runs on the
// session goroutine with the outcome.
func (s *Session) UpdateSettings(patch []byte, done func(model.IndicatorConfig, error)) {
	if s.settings == nil {
		if done != nil {
			done(s.config, errors.New("session: no settings service"))
		}
		return
	}
	symbol := s.symbol
	s.spawn(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
		defer cancel()
		cfg, err := s.settings.Update(ctx, symbol, patch)
		return func() {
			if err != nil {
				s.log.Error("settings update failed", "symbol", symbol, "error", err)
				s.notify(notification.Alert{
					Level:   notification.AlertCritical,
					Kind:    notification.KindConfigPersist,
					Title:   "settings not saved",
					Message: err.Error(),
					Symbol:  symbol,
					Patch:   patch,
				})
				if done != nil {
					done(s.config, err)
				}
				return
			}
			if symbol == s.symbol {
				s.config = cfg
				s.reconnect()
			}
			if done != nil {
				done(cfg, nil)
			}
		}
	})
}

// Wait blocks until background work has delivered its results.
func (s *Session) Wait() { s.pending.Wait() }

// Snapshot returns the snapshot on screen, or nil.
func (s *Session) Snapshot() *model.Snapshot { return s.snapshot }

// Config returns the settings of the current symbol.
func (s *Session) Config() model.IndicatorConfig { return s.config }

// GridLines reports whether grid lines are shown.
func (s *Session) GridLines() bool { return s.gridLines }

// Key returns the current symbol and interval.
func (s *Session) Key() (symbol, interval string) { return s.symbol, s.interval }

// ZoneLabel returns the text of the zone-label overlay.
func (s *Session) ZoneLabel() string { return s.zoneLabel }

// Crosshair exposes the coordinator state for status displays.
func (s *Session) Crosshair() *crosshair.Coordinator { return s.crosshair }

func (s *Session) render() {
	snap := s.snapshot
	bands := s.registry.ComputeLayout(s.height)
	built := s.registry.Build(snap)
	descs := s.registry.Panels()
	geo := s.registry.Geometry()

	panels := make([]chart.PanelFrame, len(descs))
	for i, d := range descs {
		panels[i] = chart.PanelFrame{ID: d.ID, Label: d.Label, Series: built[i]}
	}
	if len(panels) > 0 {
		r := series.PriceRange(snap.Candles)
		panels[0].YRange = &r
	}
	f := chart.Frame{
		Categories: series.Categories(snap),
		Bands:      bands,
		Left:       geo.Left,
		Right:      geo.Right,
		Panels:     panels,
		GridLines:  s.gridLines,
	}
	s.surface.Render(f)
	s.frame = &f

	s.tooltip.SetSnapshot(snap, panels)
	s.crosshair.SetLength(snap.Len())
	s.updateZoneLabel()
	s.crosshair.Bind(bands, s.registry.Version())
}

// updateZoneLabel places the zone readout next to the newest price.
func (s *Session) updateZoneLabel() {
	snap := s.snapshot
	n := snap.Len()
	fams := snap.BandFamilies()
	if n == 0 || len(fams) == 0 {
		s.removeZoneLabel()
		return
	}
	price, ok := snap.LivePrice()
	if !ok {
		price = snap.Candles[0].Close
	}

	newest := n - 1
	lines := make([]string, 0, len(fams))
	for _, f := range fams {
		z := zone.Classify(price,
			bandAt(f.Band.Middle, newest, n),
			bandAt(f.Band.Upper, newest, n),
			bandAt(f.Band.Lower, newest, n))
		lines = append(lines, f.Label+":"+zone.Format(z))
	}
	text := strings.Join(lines, "\n")

	px, py, ok := s.surface.ToPixel(0, float64(newest), price)
	if !ok {
		return
	}
	label := chart.Overlay{
		ID:   zoneLabelID,
		Kind: chart.OverlayZoneLabel,
		Text: &chart.Label{X: px + zoneLabelOffsetX, Y: py + zoneLabelOffsetY, Text: text},
	}
	s.surface.SetOverlays(chart.ReplaceKind(s.surface.Overlays(), chart.OverlayZoneLabel, []chart.Overlay{label}))
	s.zoneLabel = text
}

func bandAt(src model.Values, index, n int) float64 {
	v, ok := indexmap.At([]float64(src), index, n)
	if !ok {
		return math.NaN()
	}
	return v
}

func (s *Session) removeZoneLabel() {
	s.zoneLabel = ""
	existing := s.surface.Overlays()
	if chart.CountKind(existing, chart.OverlayZoneLabel) > 0 {
		s.surface.SetOverlays(chart.ReplaceKind(existing, chart.OverlayZoneLabel, nil))
	}
}

func (s *Session) clearData() {
	s.snapshot = nil
	s.frame = nil
	s.tooltip.Clear()
	s.crosshair.SetLength(0)
	s.removeZoneLabel()
	s.surface.HideTooltip()
}

func (s *Session) reconnect() {
	if s.transport == nil {
		return
	}
	s.transport.Reconnect(s.symbol, s.interval)
}

func (s *Session) loadSettings(symbol string) {
	if s.settings == nil {
		return
	}
	s.spawn(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
		defer cancel()
		cfg, err := s.settings.Get(ctx, symbol)
		return func() {
			if err != nil {
				s.log.Warn("settings load failed, keeping defaults", "symbol", symbol, "error", err)
				return
			}
			if symbol == s.symbol {
				s.config = cfg
			}
		}
	})
}

// spawn runs work off the session goroutine and posts its result back.
func (s *Session) spawn(work func() func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if apply := work(); apply != nil {
			s.post(apply)
		}
	}()
}

func (s *Session) notify(a notification.Alert) {
	if a.TS.IsZero() {
		a.TS = time.Now().UTC()
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, a); err != nil {
			s.log.Warn("notification failed", "kind", string(a.Kind), "error", err)
		}
	}()
}
