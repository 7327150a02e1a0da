// Package feed is the dashboard side of the snapshot stream. It keeps one
// websocket open to the gateway for the current symbol/interval, decodes each
// message into a model.Snapshot and retries on a fixed delay after any
// failure.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"indicator-dashboardv1/internal/model"
)

const (
	DefaultRetryDelay  = 5 * time.Second
	DefaultReadTimeout = 60 * time.Second
	dialTimeout        = 10 * time.Second
)

// Status is the connection state reported to the status callback.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Config holds the transport settings.
type Config struct {
	// URL of the gateway stream endpoint, e.g. "ws://localhost:8080/api/ws".
	URL string

	// RetryDelay is the fixed wait before a reconnect attempt. Defaults to 5s.
	RetryDelay time.Duration

	// ReadTimeout drops a connection that has been silent this long.
	// Defaults to 60s.
	ReadTimeout time.Duration
}

func (c *Config) defaults() {
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// Client streams snapshots for one symbol/interval at a time.
type Client struct {
	cfg      Config
	base     *url.URL
	dialer   *websocket.Dialer
	log      *slog.Logger
	onSnap   func(*model.Snapshot)
	onStatus func(Status, error)

	mu       sync.Mutex
	gen      uint64
	conn     *websocket.Conn
	timer    *time.Timer
	symbol   string
	interval string
	closed   bool
}

// New creates a client. Nothing is dialed until Reconnect. onSnapshot and
// onStatus are called from the client's goroutines.
func New(cfg Config, onSnapshot func(*model.Snapshot), onStatus func(Status, error), log *slog.Logger) (*Client, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("feed: unsupported scheme %q", base.Scheme)
	}
	if log == nil {
		log = slog.Default()
	}
	if onSnapshot == nil {
		onSnapshot = func(*model.Snapshot) {}
	}
	if onStatus == nil {
		onStatus = func(Status, error) {}
	}
	return &Client{
		cfg:      cfg,
		base:     base,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		log:      log.With("component", "feed"),
		onSnap:   onSnapshot,
		onStatus: onStatus,
	}, nil
}

// Reconnect drops the current connection and any pending retry, then dials
// the stream for symbol/interval in the background.
func (c *Client) Reconnect(symbol, interval string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.symbol, c.interval = symbol, interval
	c.stopTimerLocked()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go c.connect(gen)
}

// Close stops the retry timer and the connection. It is safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

// Endpoint returns the stream URL for symbol/interval.
func (c *Client) Endpoint(symbol, interval string) string {
	u := *c.base
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) connect(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	endpoint := c.Endpoint(c.symbol, c.interval)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	cancel()
	if err != nil {
		c.fail(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.stopTimerLocked()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("connected", "url", endpoint)
	c.onStatus(StatusConnected, nil)
	c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(data string) error {
		_ = extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.fail(gen, err)
			return
		}
		if !c.current(gen) {
			return
		}
		_ = extend()

		snap, err := model.Decode(raw)
		if err != nil {
			c.log.Warn("undecodable message dropped", "error", err, "bytes", len(raw))
			continue
		}
		c.onSnap(snap)
	}
}

// fail schedules exactly one retry for the current generation.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.stopTimerLocked()
	delay := c.cfg.RetryDelay
	c.timer = time.AfterFunc(delay, func() { c.connect(gen) })
	c.mu.Unlock()

	c.log.Warn("disconnected, retrying", "in", delay, "error", err)
	c.onStatus(StatusDisconnected, err)
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
