package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/config"
	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/filter"
	"token-graph-lab/internal/graph"
	"token-graph-lab/internal/layout"
	"token-graph-lab/internal/ledgerid"
	"token-graph-lab/internal/observability"
	"token-graph-lab/internal/records"
	"token-graph-lab/internal/reducer"
	"token-graph-lab/internal/reporting"
	"token-graph-lab/internal/session"
	"token-graph-lab/internal/storage"
	"token-graph-lab/internal/stream"
)

// Backend is the part of the analysis client the server uses.
type Backend interface {
	Analyze(ctx context.Context, tokenID string) (*domain.AnalysisJob, error)
	Status(ctx context.Context, tokenID string) (*domain.AnalysisJob, error)
	Ongoing(ctx context.Context) ([]domain.AnalysisJob, error)
	Dataset(ctx context.Context, tokenID string) (*domain.Dataset, error)
}

var _ Backend = (*analysis.Client)(nil)

// Server serves graph snapshots, live layout sessions and analysis jobs.
type Server struct {
	cfg       config.PipelineConfig
	datasets  storage.DatasetStore
	transfers storage.TransferStore // nil without an analytical store
	backend   Backend               // nil serves stored datasets only
	poller    *analysis.Poller
	cache     *session.Cache
	hub       *stream.Hub
	logger    *zap.Logger
	maxTicks  int

	builds singleflight.Group

	// ctx outlives requests; background fetches use it.
	ctx context.Context

	// State
	mu        sync.Mutex
	started   time.Time
	fetches   int
	lastFetch time.Time
	watching  map[string]struct{}
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Config    config.PipelineConfig
	Datasets  storage.DatasetStore
	Transfers storage.TransferStore
	Backend   Backend
	Poller    *analysis.Poller
	Cache     *session.Cache
	Stream    stream.Options
	MaxTicks  int
	Logger    *zap.Logger
}

// NewServer creates a server. ctx bounds background work.
func NewServer(ctx context.Context, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = session.NewCache(10*time.Minute, time.Minute)
	}
	if opts.MaxTicks <= 0 {
		opts.MaxTicks = reporting.DefaultMaxTicks
	}
	if opts.Poller == nil && opts.Backend != nil {
		opts.Poller = analysis.NewPoller(opts.Backend, analysis.PollerOptions{Logger: logger})
	}

	s := &Server{
		cfg:       opts.Config,
		datasets:  opts.Datasets,
		transfers: opts.Transfers,
		backend:   opts.Backend,
		poller:    opts.Poller,
		cache:     opts.Cache,
		logger:    logger,
		maxTicks:  opts.MaxTicks,
		ctx:       ctx,
		started:   time.Now(),
		watching:  make(map[string]struct{}),
	}

	streamOpts := opts.Stream
	if streamOpts.MonthsBack == 0 {
		streamOpts.MonthsBack = opts.Config.MonthsBack
	}
	if streamOpts.Session.HiddenIDs == nil {
		streamOpts.Session.HiddenIDs = opts.Config.HiddenIDs
	}
	if streamOpts.Logger == nil {
		streamOpts.Logger = logger.Named("stream")
	}
	s.hub = stream.NewHub(stream.GraphSourceFunc(func(ctx context.Context, tokenID string) (*domain.Graph, error) {
		return s.graph(ctx, tokenID, s.cfg.MaxNodes)
	}), streamOpts)

	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /api/graph/{token}", s.withToken(s.handleGraph))
	mux.HandleFunc("GET /api/graph/{token}/wallets", s.withToken(s.handleWallets))
	mux.HandleFunc("GET /api/graph/{token}/volume", s.withToken(s.handleVolume))
	mux.HandleFunc("GET /api/graph/{token}/report", s.withToken(s.handleReport))
	mux.HandleFunc("POST /api/graph/{token}/refresh", s.withToken(s.handleRefresh))

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/analyze/ongoing", s.handleOngoing)
	mux.HandleFunc("GET /api/analyze/{token}/status", s.withToken(s.handleJobStatus))

	mux.HandleFunc("GET /ws/{token}", s.withToken(func(w http.ResponseWriter, r *http.Request, token string) {
		s.hub.ServeWS(w, r, token)
	}))

	return mux
}

// Close disconnects live sessions.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) withToken(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if !ledgerid.ValidTokenID(token) {
			writeError(w, http.StatusBadRequest, "invalid token id: "+token)
			return
		}
		h(w, r, token)
	}
}

// graph returns the built, and when maxNodes > 0 reduced, graph of a token.
// Concurrent requests for the same key share one build. The build runs on
// the server context so a departing caller does not fail the others.
func (s *Server) graph(ctx context.Context, tokenID string, maxNodes int) (*domain.Graph, error) {
	key := session.Key(tokenID, maxNodes)
	if g, ok := s.cache.Get(key); ok {
		observability.RecordCacheLookup(true)
		return g, nil
	}
	observability.RecordCacheLookup(false)

	ch := s.builds.DoChan(key, func() (interface{}, error) {
		g, err := s.build(s.ctx, tokenID, maxNodes)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, g)
		return g, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Graph), nil
	}
}

// build loads the dataset of a token and runs build and reduce on it.
func (s *Server) build(ctx context.Context, tokenID string, maxNodes int) (*domain.Graph, error) {
	ds, err := s.dataset(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	g, stats, err := graph.BuildWithStats(ds.Accounts, ds.Transfers, graph.Options{Logger: s.logger})
	if err != nil {
		observability.RecordPipelineRun("build", "error", time.Since(start).Seconds())
		return nil, err
	}
	observability.RecordPipelineRun("build", "success", time.Since(start).Seconds())

	if maxNodes > 0 {
		start = time.Now()
		opts := s.cfg.ReducerOptions()
		opts.MaxNodes = maxNodes
		opts.Logger = s.logger
		g, err = reducer.Reduce(g, opts)
		if err != nil {
			observability.RecordPipelineRun("reduce", "error", time.Since(start).Seconds())
			return nil, err
		}
		observability.RecordPipelineRun("reduce", "success", time.Since(start).Seconds())
	}

	aggregates := 0
	for _, n := range g.Nodes {
		if n.IsAggregate {
			aggregates++
		}
	}
	observability.RecordGraph(tokenID, len(g.Nodes), len(g.Links), stats.DroppedTransfers, aggregates)

	return g, nil
}

// dataset returns the stored dataset, fetching it from the backend when
// none is stored yet.
func (s *Server) dataset(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	ds, err := s.datasets.Latest(ctx, tokenID)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, storage.ErrNotFound) || s.backend == nil {
		return nil, err
	}
	return s.fetch(ctx, tokenID)
}

// fetch downloads the tables of a completed analysis and stores them.
func (s *Server) fetch(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	start := time.Now()
	ds, err := s.backend.Dataset(ctx, tokenID)
	if err != nil {
		observability.RecordPipelineRun("fetch", "error", time.Since(start).Seconds())
		return nil, err
	}
	observability.RecordPipelineRun("fetch", "success", time.Since(start).Seconds())

	if err := s.datasets.Save(ctx, ds); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, err
	}
	if s.transfers != nil {
		if err := s.transfers.InsertBulk(ctx, tokenID, ds.Transfers); err != nil {
			s.logger.Warn("store transfers", zap.String("token", tokenID), zap.Error(err))
		}
	}
	s.cache.Invalidate(tokenID)

	s.mu.Lock()
	s.fetches++
	s.lastFetch = time.Now()
	s.mu.Unlock()
	observability.RecordFetch(time.Now().Unix())

	s.logger.Info("dataset fetched",
		zap.String("token", tokenID),
		zap.Int("accounts", len(ds.Accounts)),
		zap.Int("transfers", len(ds.Transfers)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

// watch polls a job until it finishes and fetches its dataset on success.
func (s *Server) watch(tokenID string) {
	s.mu.Lock()
	if _, ok := s.watching[tokenID]; ok {
		s.mu.Unlock()
		return
	}
	s.watching[tokenID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watching, tokenID)
			s.mu.Unlock()
		}()

		job, err := s.poller.Wait(s.ctx, tokenID, func(j domain.AnalysisJob) {
			s.logger.Debug("analysis progress",
				zap.String("token", tokenID),
				zap.String("status", string(j.Status)),
				zap.Float64("holders_percent", j.Progress.HoldersPercent),
			)
		})
		if err != nil {
			s.logger.Warn("analysis polling failed", zap.String("token", tokenID), zap.Error(err))
			return
		}
		if job.Status != domain.JobStatusCompleted {
			s.logger.Warn("analysis did not complete", zap.String("token", tokenID), zap.String("status", string(job.Status)))
			return
		}
		if _, err := s.fetch(s.ctx, tokenID); err != nil {
			s.logger.Warn("fetch after analysis", zap.String("token", tokenID), zap.Error(err))
		}
	}()
}

// GraphResponse is the JSON snapshot of a visible graph.
type GraphResponse struct {
	TokenID     string                     `json:"tokenId"`
	MonthsBack  int                        `json:"monthsBack"`
	From        *time.Time                 `json:"from,omitempty"`
	To          *time.Time                 `json:"to,omitempty"`
	TotalSupply float64                    `json:"totalSupply"`
	TreasuryID  string                     `json:"treasuryId,omitempty"`
	Nodes       []domain.Node              `json:"nodes"`
	Links       []domain.Link              `json:"links"`
	Positions   map[string]domain.Position `json:"positions,omitempty"`
}

// handleGraph serves the visible graph. Query: months, hidden, maxNodes,
// hideIsolated, layout.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, token string) {
	q := r.URL.Query()
	fopts, err := s.filterOptions(q.Get("months"), q.Get("hidden"), q.Get("hideIsolated"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxNodes, err := s.maxNodesParam(q.Get("maxNodes"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := s.graph(r.Context(), token, maxNodes)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	start := time.Now()
	vg := filter.Apply(g, fopts)
	observability.RecordPipelineRun("filter", "success", time.Since(start).Seconds())

	resp := GraphResponse{
		TokenID:     token,
		MonthsBack:  fopts.MonthsBack,
		TotalSupply: g.TotalSupply,
		TreasuryID:  g.TreasuryID,
		Nodes:       vg.Nodes,
		Links:       vg.Links,
	}
	if from, to, ok := filter.Window(fopts); ok {
		resp.From, resp.To = &from, &to
	}

	if v := q.Get("layout"); v != "" {
		if on, _ := strconv.ParseBool(v); on && !vg.Empty() {
			sim := layout.New(layout.Options{Logger: s.logger})
			if err := sim.SetGraph(vg.Nodes, vg.Links); err != nil {
				s.writeFailure(w, err)
				return
			}
			sim.RunToConvergence(s.maxTicks)
			resp.Positions = sim.Snapshot()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWallets serves the wallet list. Query: search, hidden.
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request, token string) {
	q := r.URL.Query()
	g, err := s.graph(r.Context(), token, s.cfg.MaxNodes)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	hidden := s.cfg.HiddenIDs
	if v := q.Get("hidden"); v != "" {
		hidden = config.SplitList(v)
	}
	sess := session.New(g, session.Options{
		MonthsBack: s.cfg.MonthsBack,
		HiddenIDs:  hidden,
		Logger:     s.logger,
	})
	defer sess.Close()

	writeJSON(w, http.StatusOK, sess.Wallets(q.Get("search")))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request, token string) {
	if s.transfers == nil {
		writeError(w, http.StatusNotImplemented, "transfer store not configured")
		return
	}
	// Make sure the dataset exists, fetching it if needed.
	if _, err := s.dataset(r.Context(), token); err != nil {
		s.writeFailure(w, err)
		return
	}
	volume, err := s.transfers.MonthlyVolume(r.Context(), token)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if volume == nil {
		volume = []domain.MonthlyVolume{}
	}
	writeJSON(w, http.StatusOK, volume)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, token string) {
	if _, err := s.dataset(r.Context(), token); err != nil {
		s.writeFailure(w, err)
		return
	}
	gen := reporting.NewGenerator(s.datasets, s.transfers, reporting.Options{
		Reduce:   s.cfg.MaxNodes > 0,
		Reducer:  s.cfg.ReducerOptions(),
		MaxTicks: s.maxTicks,
		Logger:   s.logger,
	})
	report, err := gen.Generate(r.Context(), token)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(reporting.RenderMarkdown(report)))
}

// handleRefresh fetches the dataset again and drops cached graphs.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, token string) {
	if s.backend == nil {
		writeError(w, http.StatusNotImplemented, "analysis backend not configured")
		return
	}
	ds, err := s.fetch(r.Context(), token)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokenId":   token,
		"accounts":  len(ds.Accounts),
		"transfers": len(ds.Transfers),
		"fetchedAt": ds.FetchedAt,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusNotImplemented, "analysis backend not configured")
		return
	}
	var req struct {
		TokenID string `json:"tokenId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.backend.Analyze(r.Context(), strings.TrimSpace(req.TokenID))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.watch(job.TokenID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, token string) {
	if s.backend == nil {
		writeError(w, http.StatusNotImplemented, "analysis backend not configured")
		return
	}
	job, err := s.backend.Status(r.Context(), token)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleOngoing(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusNotImplemented, "analysis backend not configured")
		return
	}
	jobs, err := s.backend.Ongoing(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	Started        time.Time `json:"started"`
	Sessions       int       `json:"sessions"`
	CachedGraphs   int       `json:"cached_graphs"`
	Fetches        int       `json:"fetches"`
	LastFetch      time.Time `json:"last_fetch,omitempty"`
	WatchedJobs    int       `json:"watched_jobs"`
	BackendEnabled bool      `json:"backend_enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Started:        s.started,
		Fetches:        s.fetches,
		LastFetch:      s.lastFetch,
		WatchedJobs:    len(s.watching),
		BackendEnabled: s.backend != nil,
	}
	s.mu.Unlock()
	resp.Sessions = s.hub.Count()
	resp.CachedGraphs = s.cache.Len()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) filterOptions(months, hidden, hideIsolated string) (filter.Options, error) {
	opts := filter.Options{
		MonthsBack: s.cfg.MonthsBack,
		HiddenIDs:  make(map[string]struct{}),
	}
	if months != "" {
		m, err := strconv.Atoi(months)
		if err != nil {
			return opts, errors.New("invalid months")
		}
		if m != 0 {
			if err := filter.ValidateMonths(m); err != nil {
				return opts, err
			}
		}
		opts.MonthsBack = m
	}

	ids := s.cfg.HiddenIDs
	if hidden != "" {
		ids = config.SplitList(hidden)
	}
	for _, id := range ids {
		opts.HiddenIDs[id] = struct{}{}
	}

	if hideIsolated != "" {
		b, err := strconv.ParseBool(hideIsolated)
		if err != nil {
			return opts, errors.New("invalid hideIsolated")
		}
		opts.HideIsolated = b
	}
	return opts, nil
}

// maxNodesParam parses the maxNodes query value. A request may lower the
// configured budget but never raise or disable it; with reduction disabled
// in the config, requests are capped at reducer.DefaultMaxNodes.
func (s *Server) maxNodesParam(v string) (int, error) {
	if v == "" {
		return s.cfg.MaxNodes, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid maxNodes")
	}
	if n == 0 && s.cfg.MaxNodes == 0 {
		return 0, nil
	}
	limit := s.cfg.MaxNodes
	if limit == 0 {
		limit = reducer.DefaultMaxNodes
	}
	if n < 1 || n > limit {
		return 0, fmt.Errorf("maxNodes must be between 1 and %d", limit)
	}
	return n, nil
}

// writeFailure maps pipeline and backend errors to HTTP status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var apiErr *analysis.APIError
	var malformed *records.MalformedInputError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "no dataset for token")
	case errors.Is(err, analysis.ErrInvalidTokenID), errors.Is(err, filter.ErrInvalidMonths):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrMultipleTreasuries), errors.Is(err, graph.ErrDuplicateAccount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &malformed):
		// The tables came from the analysis backend.
		writeError(w, http.StatusBadGateway, malformed.Error())
	case errors.As(err, &apiErr):
		code := apiErr.StatusCode
		if code < 400 || code >= 500 {
			code = http.StatusBadGateway
		}
		writeError(w, code, apiErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
