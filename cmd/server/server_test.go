package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/config"
	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/records"
	"token-graph-lab/internal/session"
	"token-graph-lab/internal/storage/memory"
	"token-graph-lab/internal/stream"
)

const testToken = "0.0.9"

func testDataset(now time.Time) *domain.Dataset {
	return &domain.Dataset{
		TokenID: testToken,
		Accounts: []domain.Account{
			{ID: "0.0.1", Balance: 800, IsTreasury: true},
			{ID: "0.0.2", Balance: 150},
			{ID: "0.0.3", Balance: 50},
		},
		Transfers: []domain.Transfer{
			{Timestamp: now.AddDate(0, -2, 0), Sender: "0.0.1", Receiver: "0.0.2", Amount: 150},
			{Timestamp: now.AddDate(0, -1, 0), Sender: "0.0.1", Receiver: "0.0.3", Amount: 50},
		},
		FetchedAt: now,
	}
}

// fakeBackend is a scripted analysis backend.
type fakeBackend struct {
	mu           sync.Mutex
	dataset      *domain.Dataset
	analyzeErr   error
	statuses     []domain.JobStatus
	statusCalls  int
	datasetCalls int
	datasetErr   error
	entered      chan struct{} // signalled when Dataset is called
	gate         chan struct{} // Dataset blocks until closed
}

func (f *fakeBackend) Analyze(_ context.Context, tokenID string) (*domain.AnalysisJob, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &domain.AnalysisJob{TokenID: tokenID, Status: domain.JobStatusStarted}, nil
}

func (f *fakeBackend) Status(_ context.Context, tokenID string) (*domain.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := domain.JobStatusCompleted
	if f.statusCalls < len(f.statuses) {
		status = f.statuses[f.statusCalls]
	}
	f.statusCalls++
	return &domain.AnalysisJob{TokenID: tokenID, Status: status}, nil
}

func (f *fakeBackend) Ongoing(_ context.Context) ([]domain.AnalysisJob, error) {
	return []domain.AnalysisJob{{TokenID: testToken, Status: domain.JobStatusInProgress}}, nil
}

func (f *fakeBackend) Dataset(ctx context.Context, tokenID string) (*domain.Dataset, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasetCalls++
	if f.datasetErr != nil {
		return nil, f.datasetErr
	}
	if f.dataset == nil || f.dataset.TokenID != tokenID {
		return nil, &analysis.APIError{StatusCode: http.StatusNotFound, Message: "unknown token"}
	}
	return f.dataset, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.datasetCalls
}

type testEnv struct {
	server    *Server
	http      *httptest.Server
	datasets  *memory.DatasetStore
	transfers *memory.TransferStore
}

func newTestEnv(t *testing.T, backend Backend, seed bool) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	datasets := memory.NewDatasetStore()
	transfers := memory.NewTransferStore()
	if seed {
		ds := testDataset(time.Now().UTC())
		require.NoError(t, datasets.Save(ctx, ds))
		require.NoError(t, transfers.InsertBulk(ctx, ds.TokenID, ds.Transfers))
	}

	opts := ServerOptions{
		Config:    config.Default(),
		Datasets:  datasets,
		Transfers: transfers,
		Cache:     session.NewCache(time.Minute, time.Minute),
		MaxTicks:  200,
	}
	opts.Stream.Config = stream.DefaultConfig()
	opts.Stream.Config.FrameInterval = 5 * time.Millisecond
	if backend != nil {
		opts.Backend = backend
		opts.Poller = analysis.NewPoller(backend, analysis.PollerOptions{
			StatusInterval:  5 * time.Millisecond,
			OngoingInterval: 5 * time.Millisecond,
		})
	}

	s := NewServer(ctx, opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		s.Close()
		ts.Close()
	})
	return &testEnv{server: s, http: ts, datasets: datasets, transfers: transfers}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_Graph(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"?months=0")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var g GraphResponse
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, testToken, g.TokenID)
	assert.Equal(t, "0.0.1", g.TreasuryID)
	assert.Equal(t, 1000.0, g.TotalSupply)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Links, 2)
	assert.Nil(t, g.From)
	assert.Empty(t, g.Positions)
}

func TestServer_GraphWindowAndHidden(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"?months=1&hidden=0.0.3")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var g GraphResponse
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, 1, g.MonthsBack)
	require.NotNil(t, g.From)
	require.NotNil(t, g.To)
	assert.Len(t, g.Nodes, 2)
	// The only remaining link is two months old.
	assert.Empty(t, g.Links)

	resp, body = env.get(t, "/api/graph/"+testToken+"?months=1&hidden=0.0.3&hideIsolated=true")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Empty(t, g.Nodes)
}

func TestServer_GraphLayout(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"?months=0&layout=1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var g GraphResponse
	require.NoError(t, json.Unmarshal(body, &g))
	require.Len(t, g.Positions, 3)
	for _, n := range g.Nodes {
		_, ok := g.Positions[n.ID]
		assert.True(t, ok, "missing position for %s", n.ID)
	}
}

func TestServer_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil, true)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"invalid token", "/api/graph/not-a-token", http.StatusBadRequest},
		{"unsupported months", "/api/graph/" + testToken + "?months=5", http.StatusBadRequest},
		{"non-numeric months", "/api/graph/" + testToken + "?months=abc", http.StatusBadRequest},
		{"negative maxNodes", "/api/graph/" + testToken + "?maxNodes=-1", http.StatusBadRequest},
		{"maxNodes above budget", "/api/graph/" + testToken + "?maxNodes=1001", http.StatusBadRequest},
		{"maxNodes disabling reduction", "/api/graph/" + testToken + "?maxNodes=0", http.StatusBadRequest},
		{"bad hideIsolated", "/api/graph/" + testToken + "?hideIsolated=maybe", http.StatusBadRequest},
		{"unknown token", "/api/graph/0.0.77", http.StatusNotFound},
		{"analysis without backend", "/api/analyze/ongoing", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.get(t, tt.path)
			assert.Equal(t, tt.code, resp.StatusCode, string(body))
		})
	}
}

func TestServer_MultipleTreasuries(t *testing.T) {
	env := newTestEnv(t, nil, false)
	ds := testDataset(time.Now().UTC())
	ds.Accounts[1].IsTreasury = true
	require.NoError(t, env.datasets.Save(context.Background(), ds))

	resp, body := env.get(t, "/api/graph/"+testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))
}

func TestServer_MaxNodesLowersBudget(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"?months=0&maxNodes=2")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var g GraphResponse
	require.NoError(t, json.Unmarshal(body, &g))
	assert.LessOrEqual(t, len(g.Nodes), 2)
	assert.Equal(t, 1000.0, g.TotalSupply)
}

func TestServer_MalformedBackendTables(t *testing.T) {
	_, _, parseErr := records.Parse(
		records.FromText("account,amount\n0.0.1,5\n"),
		records.FromText("timestamp,txId,sender,amount,receiver\n"),
	)
	require.Error(t, parseErr)

	backend := &fakeBackend{datasetErr: fmt.Errorf("parse %s tables: %w", testToken, parseErr)}
	env := newTestEnv(t, backend, false)

	resp, body := env.get(t, "/api/graph/"+testToken)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Contains(t, out["error"], "holders")
	assert.Contains(t, out["error"], "balance")
}

func TestServer_SharedBuildOutlivesCaller(t *testing.T) {
	backend := &fakeBackend{
		dataset: testDataset(time.Now().UTC()),
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	env := newTestEnv(t, backend, false)
	maxNodes := env.server.cfg.MaxNodes

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := env.server.graph(firstCtx, testToken, maxNodes)
		first <- err
	}()
	<-backend.entered

	type result struct {
		g   *domain.Graph
		err error
	}
	second := make(chan result, 1)
	go func() {
		g, err := env.server.graph(context.Background(), testToken, maxNodes)
		second <- result{g, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(backend.gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.g.Nodes, 3)
	assert.Equal(t, 1, backend.calls())
}

func TestServer_FetchesMissingDataset(t *testing.T) {
	backend := &fakeBackend{dataset: testDataset(time.Now().UTC())}
	env := newTestEnv(t, backend, false)

	resp, body := env.get(t, "/api/graph/"+testToken+"?months=0")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 1, backend.calls())

	// Cached graph, no second fetch.
	resp, _ = env.get(t, "/api/graph/"+testToken+"?months=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, backend.calls())

	stored, err := env.datasets.Latest(context.Background(), testToken)
	require.NoError(t, err)
	assert.Len(t, stored.Accounts, 3)

	// Backend 404 passes through.
	resp, _ = env.get(t, "/api/graph/0.0.77")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Refresh(t *testing.T) {
	backend := &fakeBackend{dataset: testDataset(time.Now().UTC().Add(time.Hour))}
	env := newTestEnv(t, backend, true)

	resp, _ := env.get(t, "/api/graph/"+testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, env.server.cache.Len())

	post, err := http.Post(env.http.URL+"/api/graph/"+testToken+"/refresh", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusOK, post.StatusCode)
	assert.Equal(t, 0, env.server.cache.Len())
	assert.Equal(t, 1, backend.calls())
}

func TestServer_Wallets(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"/wallets")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var wallets []session.Wallet
	require.NoError(t, json.Unmarshal(body, &wallets))
	require.Len(t, wallets, 3)
	assert.Equal(t, "0.0.1", wallets[0].ID)
	assert.True(t, wallets[0].IsTreasury)

	resp, body = env.get(t, "/api/graph/"+testToken+"/wallets?search=0.0.3&hidden=0.0.3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &wallets))
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Hidden)
}

func TestServer_Volume(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"/volume")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var volume []domain.MonthlyVolume
	require.NoError(t, json.Unmarshal(body, &volume))
	require.Len(t, volume, 2)
	assert.Equal(t, 150.0, volume[0].Volume)
	assert.Equal(t, 50.0, volume[1].Volume)

	noTransfers := NewServer(context.Background(), ServerOptions{
		Config:   config.Default(),
		Datasets: env.datasets,
	})
	defer noTransfers.Close()
	rec := httptest.NewRecorder()
	noTransfers.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/graph/"+testToken+"/volume", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Report(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/api/graph/"+testToken+"/report")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	assert.True(t, strings.HasPrefix(string(body), "# Holder Graph: "+testToken))
	assert.Contains(t, string(body), "## Monthly Volume")
}

func TestServer_AnalyzeFetchesOnCompletion(t *testing.T) {
	backend := &fakeBackend{
		dataset:  testDataset(time.Now().UTC()),
		statuses: []domain.JobStatus{domain.JobStatusStarted, domain.JobStatusInProgress},
	}
	env := newTestEnv(t, backend, false)

	resp, err := http.Post(env.http.URL+"/api/analyze", "application/json",
		strings.NewReader(`{"tokenId":"`+testToken+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, err := env.datasets.Latest(context.Background(), testToken)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	r, body := env.get(t, "/status")
	require.Equal(t, http.StatusOK, r.StatusCode)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, 1, status.Fetches)
	assert.True(t, status.BackendEnabled)
}

func TestServer_AnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid token", analysis.ErrInvalidTokenID, http.StatusBadRequest},
		{"backend client error", &analysis.APIError{StatusCode: http.StatusConflict, Message: "busy"}, http.StatusConflict},
		{"backend server error", &analysis.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeBackend{analyzeErr: tt.err}, false)
			resp, err := http.Post(env.http.URL+"/api/analyze", "application/json",
				strings.NewReader(`{"tokenId":"x"}`))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestServer_JobStatusAndOngoing(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{}, false)

	resp, body := env.get(t, "/api/analyze/"+testToken+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job domain.AnalysisJob
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	resp, body = env.get(t, "/api/analyze/ongoing")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jobs []domain.AnalysisJob
	require.NoError(t, json.Unmarshal(body, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, testToken, jobs[0].TokenID)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	env.get(t, "/api/graph/"+testToken)
	resp, body = env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "graph_cache_lookups_total")
}

func TestServer_WebSocket(t *testing.T) {
	env := newTestEnv(t, nil, true)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/" + testToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame stream.Frame
	for frame.Type != stream.MessageFrame {
		require.NoError(t, conn.ReadJSON(&frame))
	}
	assert.Len(t, frame.Nodes, 3)
	assert.Equal(t, 6, frame.MonthsBack)

	require.Eventually(t, func() bool {
		return env.server.hub.Count() == 1
	}, time.Second, 10*time.Millisecond)
}
