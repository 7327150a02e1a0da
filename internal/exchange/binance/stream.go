package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"indicator-dashboardv1/internal/model"
)

const (
	DefaultStreamURL = "wss://stream.binance.com:9443"

	defaultReadTimeout = 90 * time.Second
	defaultMinRetry    = time.Second
	defaultMaxRetry    = time.Minute
	streamDialTimeout  = 10 * time.Second
)

// StreamConfig selects the combined stream.
type StreamConfig struct {
	URL       string // defaults to DefaultStreamURL
	Symbols   []string
	Intervals []string

	// ReadTimeout drops a connection that has been silent this long. The
	// server pings every 20s. Defaults to 90s.
	ReadTimeout time.Duration

	// Reconnect backoff bounds. Default to 1s and 1m.
	MinRetry time.Duration
	MaxRetry time.Duration
}

// Handlers receive stream events. All run on the stream goroutine.
type Handlers struct {
	// OnConnect runs after every successful dial, before any event is read,
	// so a gap left by the previous connection can be repaired in order.
	OnConnect func(ctx context.Context)

	// OnBar receives closed klines only.
	OnBar func(model.Bar)

	// OnTrade receives every trade.
	OnTrade func(model.Trade)

	// OnDisconnect runs when a connection is lost, before the retry wait.
	OnDisconnect func(err error)
}

// Stream keeps one combined websocket open for the kline and trade streams
// of every configured series and redials with exponential backoff.
type Stream struct {
	cfg      StreamConfig
	endpoint string
	dialer   *websocket.Dialer
	h        Handlers
	log      *slog.Logger

	series map[string]bool // topic keys the stream was opened for
}

// NewStream validates the series and builds the combined stream URL.
func NewStream(cfg StreamConfig, h Handlers, log *slog.Logger) (*Stream, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MinRetry <= 0 {
		cfg.MinRetry = defaultMinRetry
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("binance: stream needs at least one symbol")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("binance: parse stream url: %w", err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("binance: unsupported stream scheme %q", base.Scheme)
	}

	series := make(map[string]bool)
	var names []string
	for _, sym := range cfg.Symbols {
		lower := strings.ToLower(sym)
		names = append(names, lower+"@trade")
		for _, iv := range cfg.Intervals {
			if !SupportedInterval(iv) {
				return nil, fmt.Errorf("binance: unsupported interval %q", iv)
			}
			names = append(names, lower+"@kline_"+iv)
			series[model.TopicKey(strings.ToUpper(sym), iv)] = true
		}
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/stream"
	// Stream names go unescaped; the server splits on '/'.
	base.RawQuery = "streams=" + strings.Join(names, "/")

	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		cfg:      cfg,
		endpoint: base.String(),
		dialer:   &websocket.Dialer{HandshakeTimeout: streamDialTimeout},
		h:        h,
		log:      log.With("component", "binance-stream"),
		series:   series,
	}, nil
}

// Endpoint returns the combined stream URL.
func (s *Stream) Endpoint() string { return s.endpoint }

// Run reads the stream until ctx is cancelled, reconnecting after every
// failure.
func (s *Stream) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.MinRetry
	b.MaxInterval = s.cfg.MaxRetry
	b.MaxElapsedTime = 0

	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		s.log.Warn("stream disconnected, retrying", "in", wait, "error", err)
		if s.h.OnDisconnect != nil {
			s.h.OnDisconnect(err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session dials once and reads until the connection fails. connected
// reports whether the dial succeeded.
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.log.Info("stream connected", "streams", len(s.series))
	if s.h.OnConnect != nil {
		s.h.OnConnect(ctx)
	}

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	_ = extend()
	conn.SetPingHandler(func(data string) error {
		_ = extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = extend()
		if err := s.dispatch(raw); err != nil {
			s.log.Warn("undecodable event dropped", "error", err, "bytes", len(raw))
		}
	}
}

// envelope wraps every event of a combined stream.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Event payloads list both spellings of keys that differ only in case
// ("e"/"E", "t"/"T", "l"/"L", ...); encoding/json would otherwise fold one
// into the other.
type eventHead struct {
	Type string `json:"e"`
	Time int64  `json:"E"`
}

type klineEvent struct {
	Type   string `json:"e"`
	Time   int64  `json:"E"`
	Symbol string `json:"s"`
	K      struct {
		Start       int64  `json:"t"`
		End         int64  `json:"T"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		FirstID     int64  `json:"f"`
		LastID      int64  `json:"L"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		Trades      int64  `json:"n"`
		Final       bool   `json:"x"`
		QuoteVolume string `json:"q"`
		TakerBase   string `json:"V"`
		TakerQuote  string `json:"Q"`
		Ignore      string `json:"B"`
	} `json:"k"`
}

type tradeEvent struct {
	Type       string `json:"e"`
	Time       int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Qty        string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

func (s *Stream) dispatch(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		// Subscription acks and other control replies.
		return nil
	}
	var head eventHead
	if err := json.Unmarshal(env.Data, &head); err != nil {
		return fmt.Errorf("%s: %w", env.Stream, err)
	}
	switch head.Type {
	case "kline":
		bar, final, err := decodeKline(env.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", env.Stream, err)
		}
		if !final || !s.series[bar.Key()] {
			return nil
		}
		if s.h.OnBar != nil {
			s.h.OnBar(bar)
		}
	case "trade":
		t, err := decodeTrade(env.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", env.Stream, err)
		}
		if s.h.OnTrade != nil {
			s.h.OnTrade(t)
		}
	}
	return nil
}

func decodeKline(data []byte) (model.Bar, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Bar{}, false, err
	}
	var ohlcv [5]float64
	for i, f := range []string{ev.K.Open, ev.K.High, ev.K.Low, ev.K.Close, ev.K.Volume} {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return model.Bar{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		ohlcv[i] = v
	}
	bar := model.Bar{
		Symbol:   ev.Symbol,
		Interval: ev.K.Interval,
		Candle: model.Candle{
			Time:   time.UnixMilli(ev.K.Start).UTC(),
			Open:   ohlcv[0],
			High:   ohlcv[1],
			Low:    ohlcv[2],
			Close:  ohlcv[3],
			Volume: ohlcv[4],
		},
	}
	return bar, ev.K.Final, nil
}

func decodeTrade(data []byte) (model.Trade, error) {
	var ev tradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Trade{}, err
	}
	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return model.Trade{}, fmt.Errorf("trade price: %w", err)
	}
	return model.Trade{Symbol: ev.Symbol, Price: price, Time: time.UnixMilli(ev.TradeTime).UTC()}, nil
}
