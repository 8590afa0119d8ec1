// Package stream serves interactive layout sessions over WebSocket. Each
// connection owns one session.Session on a dedicated goroutine; layout
// frames and pointer events are both funnelled onto that goroutine.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-graph-lab/internal/config"
	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/filter"
	"token-graph-lab/internal/layout"
	"token-graph-lab/internal/session"
)

// ErrHubClosed is returned by ServeWS after Close.
var ErrHubClosed = errors.New("stream hub closed")

// Config configures connection behavior.
type Config struct {
	// FrameInterval is the layout tick period.
	FrameInterval time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxMessageSize bounds inbound event size.
	MaxMessageSize int64
	// EventBuffer is the number of inbound events queued per client.
	EventBuffer int
}

// DefaultConfig returns default connection configuration.
func DefaultConfig() Config {
	return Config{
		FrameInterval:  layout.DefaultFrameInterval,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 4096,
		EventBuffer:    64,
	}
}

// GraphSource resolves the full graph of a token.
type GraphSource interface {
	Graph(ctx context.Context, tokenID string) (*domain.Graph, error)
}

// GraphSourceFunc adapts a function to GraphSource.
type GraphSourceFunc func(ctx context.Context, tokenID string) (*domain.Graph, error)

// Graph implements GraphSource.
func (f GraphSourceFunc) Graph(ctx context.Context, tokenID string) (*domain.Graph, error) {
	return f(ctx, tokenID)
}

// Options configures a Hub.
type Options struct {
	Config     Config
	Session    session.Options // template; scheduler and frame hook are set per client
	MonthsBack int             // default window when the request has none
	Logger     *zap.Logger
	// CheckOrigin overrides the upgrader origin check.
	CheckOrigin func(r *http.Request) bool
}

// Hub tracks live sessions.
type Hub struct {
	cfg      Config
	opts     Options
	source   GraphSource
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub that loads graphs from source.
func NewHub(source GraphSource, opts Options) *Hub {
	def := DefaultConfig()
	cfg := opts.Config
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		cfg:    cfg,
		opts:   opts,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// ServeWS loads the graph of tokenID, upgrades the connection and starts a
// session. Query parameters: months, hidden (comma separated), hideIsolated.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, tokenID string) {
	sessOpts, err := h.sessionOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.source.Graph(r.Context(), tokenID)
	if err != nil {
		h.logger.Warn("load graph for stream", zap.String("token", tokenID), zap.Error(err))
		http.Error(w, "graph unavailable", http.StatusBadGateway)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, uuid.NewString(), tokenID, conn)
	if err := h.register(c); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(h.cfg.WriteTimeout))
		conn.Close()
		return
	}
	c.start(g, sessOpts)
}

func (h *Hub) sessionOptions(r *http.Request) (session.Options, error) {
	opts := h.opts.Session
	opts.MonthsBack = h.opts.MonthsBack
	q := r.URL.Query()

	if v := q.Get("months"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid months %q", v)
		}
		if err := filter.ValidateMonths(m); err != nil {
			return opts, err
		}
		opts.MonthsBack = m
	}
	if v := q.Get("hidden"); v != "" {
		opts.HiddenIDs = config.SplitList(v)
	}
	if v := q.Get("hideIsolated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid hideIsolated %q", v)
		}
		opts.HideIsolated = b
	}
	if opts.Logger == nil {
		opts.Logger = h.logger
	}
	return opts, nil
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.wg.Done()
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Sessions returns the ids of live sessions.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Close disconnects every session and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	h.wg.Wait()
}
