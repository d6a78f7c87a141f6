package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crossover-sim/internal/execution"
	"crossover-sim/internal/metrics"
	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/report"
	storeredis "crossover-sim/internal/store/redis"
	"crossover-sim/internal/store/sqlite"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	q := url.Values{
		"days":        {"300"},
		"seed":        {"7"},
		"sigma":       {"0.02"},
		"end_date":    {"2025-01-31"},
		"unknown_key": {"ignored"},
	}
	p, err := ParseParams(q, model.DefaultSimParams())
	require.NoError(t, err)
	assert.Equal(t, 300, p.Days)
	assert.Equal(t, int64(7), p.Seed)
	assert.Equal(t, 0.02, p.Sigma)
	assert.Equal(t, "2025-01-31", p.EndDate.Format(model.DateLayout))
	assert.Equal(t, 60000.0, p.StartPrice)
}

func TestParseParams_Malformed(t *testing.T) {
	for _, q := range []url.Values{
		{"days": {"ten"}},
		{"seed": {"1.5"}},
		{"mu": {"abc"}},
		{"end_date": {"21/12/2024"}},
	} {
		_, err := ParseParams(q, model.DefaultSimParams())
		assert.ErrorIs(t, err, model.ErrInvalidConfig, "%v", q)
	}
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	buf := buildEnvelope(FeedChannel, []byte(`{"run_id":"r1"}`), now, 42)

	var env struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
		TS      string          `json:"ts"`
		Seq     int64           `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, "runs", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.JSONEq(t, `{"run_id":"r1"}`, string(env.Data))
	ts, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

type recordingSink struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSink) sink(_ context.Context, out *pipeline.Outcome) {
	r.mu.Lock()
	r.ids = append(r.ids, out.RunID)
	r.mu.Unlock()
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func newTestServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	if s.Defaults.Days == 0 {
		s.Defaults = model.DefaultSimParams()
	}
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleRun_Default(t *testing.T) {
	rec := &recordingSink{}
	m := metrics.NewMetrics(nil)
	ts := newTestServer(t, &Server{Metrics: m, Sinks: []Sink{rec.sink}})

	resp, err := http.Get(ts.URL + "/api/run")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var doc report.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.InDelta(t, 981.8820640729841, doc.Summary.FinalValue, 1e-5)
	assert.Equal(t, 5, doc.Summary.TradeCount)
	assert.Equal(t, "2024-12-21", doc.WindowEnd)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal))
}

func TestHandleRun_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, &Server{MaxDays: 5000})

	cases := map[string]int{
		"/api/run?days=0":         http.StatusBadRequest,
		"/api/run?days=abc":       http.StatusBadRequest,
		"/api/run?days=6000":      http.StatusBadRequest,
		"/api/run?start_price=-1": http.StatusBadRequest,
		"/api/run?days=250":       http.StatusUnprocessableEntity,
	}
	for path, want := range cases {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		var body ErrorBody
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
		assert.NotEmpty(t, body.Error, path)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/run", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRunsEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	w, err := sqlite.New(sqlite.WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()
	r, err := sqlite.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	j, err := execution.NewJournal(path, nil)
	require.NoError(t, err)
	defer j.Close()

	save := func(ctx context.Context, out *pipeline.Outcome) {
		require.NoError(t, w.SaveOutcome(ctx, out))
		require.NoError(t, j.RecordFills(out.RunID, out.Result.Fills))
	}
	ts := newTestServer(t, &Server{Reader: r, Journal: j, Sinks: []Sink{save}})

	resp, err := http.Get(ts.URL + "/api/run?seed=7")
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	var runs []sqlite.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	resp.Body.Close()
	require.Len(t, runs, 1)
	assert.Equal(t, doc.RunID, runs[0].RunID)
	assert.Equal(t, int64(7), runs[0].Params.Seed)

	resp, err = http.Get(ts.URL + "/api/runs/" + doc.RunID)
	require.NoError(t, err)
	var detail RunDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, detail.Ledger, 60)
	assert.Equal(t, doc.Summary, detail.Summary)
	require.NotEmpty(t, detail.Series)
	assert.Equal(t, doc.WindowEnd, detail.Series[len(detail.Series)-1].Date.Format(model.DateLayout))
	require.Len(t, detail.Fills, doc.Summary.TradeCount)
	assert.Equal(t, "BUY", detail.Fills[0].Side)

	resp, err = http.Get(ts.URL + "/api/runs/latest")
	require.NoError(t, err)
	var latest RunDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, doc.RunID, latest.RunID)
	assert.Len(t, latest.Fills, doc.Summary.TradeCount)

	resp, err = http.Get(ts.URL + "/api/runs/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsEndpoints_NoStore(t *testing.T) {
	ts := newTestServer(t, &Server{})
	resp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type failingReader struct{}

func (failingReader) ListRuns(context.Context, int) ([]sqlite.RunRecord, error) {
	return nil, errors.New("disk gone")
}
func (failingReader) GetRun(context.Context, string) (sqlite.RunRecord, error) {
	return sqlite.RunRecord{}, errors.New("disk gone")
}
func (failingReader) Ledger(context.Context, string) ([]model.LedgerEntry, error) {
	return nil, errors.New("disk gone")
}
func (failingReader) Series(context.Context, string) ([]model.PricePoint, error) {
	return nil, errors.New("disk gone")
}

func TestRunsEndpoints_StoreFailure(t *testing.T) {
	ts := newTestServer(t, &Server{Reader: failingReader{}})
	resp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// fakeCache serves published runs from memory.
type fakeCache struct {
	runs []storeredis.RunMessage // newest first
	err  error
}

func (c *fakeCache) Latest(context.Context) (*storeredis.RunMessage, error) {
	if c.err != nil || len(c.runs) == 0 {
		return nil, c.err
	}
	return &c.runs[0], nil
}

func (c *fakeCache) Get(_ context.Context, id string) (*storeredis.RunMessage, error) {
	for i := range c.runs {
		if c.runs[i].RunID == id {
			return &c.runs[i], c.err
		}
	}
	return nil, c.err
}

func (c *fakeCache) Recent(_ context.Context, count int64) ([]storeredis.RunMessage, error) {
	if int64(len(c.runs)) > count {
		return c.runs[:count], c.err
	}
	return c.runs, c.err
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestRunsEndpoints_CacheOnly(t *testing.T) {
	cache := &fakeCache{runs: []storeredis.RunMessage{{RunID: "new"}, {RunID: "old"}}}
	ts := newTestServer(t, &Server{Cache: cache})

	var latest storeredis.RunMessage
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs/latest", &latest))
	assert.Equal(t, "new", latest.RunID)

	var one storeredis.RunMessage
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs/old", &one))
	assert.Equal(t, "old", one.RunID)

	var list []storeredis.RunMessage
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs?limit=1", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].RunID)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/runs/gone", nil))
}

func TestRunsEndpoints_CacheEmptyOrFailing(t *testing.T) {
	ts := newTestServer(t, &Server{Cache: &fakeCache{}})
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/runs/latest", nil))

	ts = newTestServer(t, &Server{Cache: &fakeCache{err: errors.New("redis down")}})
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/api/runs/latest", nil))
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/api/runs", nil))
}

// A run missing from SQLite is served from the cache.
func TestRunsEndpoints_StoreMissFallsBackToCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	w, err := sqlite.New(sqlite.WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()
	r, err := sqlite.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	cache := &fakeCache{runs: []storeredis.RunMessage{{RunID: "cached"}}}
	ts := newTestServer(t, &Server{Reader: r, Cache: cache})

	var msg storeredis.RunMessage
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs/cached", &msg))
	assert.Equal(t, "cached", msg.RunID)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/runs/elsewhere", nil))

	assert.Equal(t, http.StatusNotFound, getJSON(t, newTestServer(t, &Server{Reader: r}).URL+"/api/runs/latest", nil))
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	m := metrics.NewMetrics(nil)
	h := metrics.NewHealthStatus()
	ts := newTestServer(t, &Server{Metrics: m, Health: h})

	resp, err := http.Get(ts.URL + "/api/run")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health struct {
		Status    string `json:"status"`
		LastRunID string `json:"last_run_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.LastRunID)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestStreamRun(t *testing.T) {
	ts := newTestServer(t, &Server{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/run"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var days, trades int
	var summary report.Document
	lastSeq := 0
	for {
		var ev struct {
			Type string          `json:"type"`
			Seq  int             `json:"seq"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, lastSeq+1, ev.Seq)
		lastSeq = ev.Seq
		switch ev.Type {
		case EventDay:
			days++
		case EventTrade:
			trades++
		case EventSummary:
			require.NoError(t, json.Unmarshal(ev.Data, &summary))
		default:
			t.Fatalf("unexpected event %q", ev.Type)
		}
	}
	assert.Equal(t, 60, days)
	assert.Equal(t, 5, trades)
	assert.InDelta(t, 981.8820640729841, summary.Summary.FinalValue, 1e-5)
}

func TestStreamRun_InvalidParams(t *testing.T) {
	ts := newTestServer(t, &Server{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/run?days=-3"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, "days must be positive")
}

func TestFeed_ReceivesCompletedRuns(t *testing.T) {
	hub := NewHub(10, nil)
	ts := newTestServer(t, &Server{Hub: hub})

	// A run completed before the client connects is replayed.
	resp, err := http.Get(ts.URL + "/api/run?seed=1")
	require.NoError(t, err)
	resp.Body.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	readRun := func() (int64, storeredis.RunMessage) {
		var env struct {
			Seq  int64                 `json:"seq"`
			Data storeredis.RunMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&env))
		return env.Seq, env.Data
	}

	seq, msg := readRun()
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, int64(1), msg.Params.Seed)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	resp, err = http.Get(ts.URL + "/api/run?seed=2")
	require.NoError(t, err)
	resp.Body.Close()

	seq, msg = readRun()
	assert.Equal(t, int64(2), seq)
	assert.Equal(t, int64(2), msg.Params.Seed)
}

func TestFeed_LastSeqSkipsSeen(t *testing.T) {
	hub := NewHub(10, nil)
	for i := 1; i <= 3; i++ {
		hub.Broadcast([]byte(fmt.Sprintf(`{"run_id":"r%d"}`, i)))
	}
	ts := newTestServer(t, &Server{Hub: hub})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/runs?last_seq=2"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env struct {
		Seq  int64 `json:"seq"`
		Data struct {
			RunID string `json:"run_id"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, int64(3), env.Seq)
	assert.Equal(t, "r3", env.Data.RunID)
}

func TestFeed_NotConfigured(t *testing.T) {
	ts := newTestServer(t, &Server{})
	resp, err := http.Get(ts.URL + "/ws/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
