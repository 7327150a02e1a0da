package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"indicator-dashboardv1/internal/logger"
	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
)

const (
	DefaultSymbol   = "BTCUSDT"
	DefaultInterval = "1h"

	maxConfigBody      = 64 << 10
	defaultCandleLimit = 200
	maxCandleLimit     = 1000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RouterDeps are the collaborators of the HTTP API.
type RouterDeps struct {
	Hub     *Hub
	Configs *ConfigService
	Candles model.CandleSource
	Health  http.Handler     // /healthz
	Metrics http.Handler     // /metrics
	Stats   *metrics.Metrics // may be nil
	Logger  *slog.Logger
}

type api struct {
	RouterDeps
	log *slog.Logger
}

// NewRouter builds the gateway's chi router.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &api{RouterDeps: d, log: log.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withTrace)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors)
		r.Get("/ws", a.handleWS)
		r.Get("/config", a.handleGetConfig)
		r.Post("/config", a.handleUpdateConfig)
		r.Get("/candles", a.handleCandles)
	})
	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	return r
}

// topicFromQuery reads symbol and interval with their defaults.
func topicFromQuery(r *http.Request) (Topic, error) {
	q := r.URL.Query()
	t := Topic{
		Symbol:   normalizeSymbol(q.Get("symbol")),
		Interval: strings.TrimSpace(q.Get("interval")),
	}
	if t.Interval == "" {
		t.Interval = DefaultInterval
	}
	if _, err := model.IntervalMinutes(t.Interval); err != nil {
		return Topic{}, err
	}
	return t, nil
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultSymbol
	}
	return s
}

func (a *api) handleWS(w http.ResponseWriter, r *http.Request) {
	t, err := topicFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		a.log.Warn("ws upgrade failed", "error", err)
		return
	}
	a.Hub.Serve(conn, t)
}

func (a *api) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	cfg, err := a.Configs.Get(r.Context(), symbol)
	if err != nil {
		a.log.Error("config read failed", append([]any{"symbol", symbol, "error", err}, logger.LogWithTrace(r.Context())...)...)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		a.countUpdate("invalid")
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, err := a.Configs.Update(r.Context(), symbol, body)
	switch {
	case errors.Is(err, model.ErrInvalidConfig):
		a.countUpdate("invalid")
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		a.countUpdate("error")
		a.log.Error("config persist failed", append([]any{"symbol", symbol, "error", err}, logger.LogWithTrace(r.Context())...)...)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.countUpdate("ok")
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) countUpdate(result string) {
	if a.Stats != nil {
		a.Stats.ConfigUpdates.WithLabelValues(result).Inc()
	}
}

func (a *api) handleCandles(w http.ResponseWriter, r *http.Request) {
	t, err := topicFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := defaultCandleLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= maxCandleLimit {
			limit = n
		}
	}

	candles, err := a.Candles.LatestCandles(r.Context(), t.Symbol, t.Interval, limit)
	if err != nil {
		a.log.Warn("candle read failed", "topic", t.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]CandleOut, len(candles))
	for i, c := range candles {
		out[i] = candleOut(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorOut{Error: err.Error()})
}
