// Package gateway is the HTTP and WebSocket surface of the simulation
// server: on-demand runs, stored run lookup, a streamed run and a live
// feed of completed runs.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"crossover-sim/internal/backtest"
	"crossover-sim/internal/execution"
	"crossover-sim/internal/metrics"
	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/report"
	storeredis "crossover-sim/internal/store/redis"
	"crossover-sim/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

// DefaultMaxDays bounds the horizon a single HTTP request may ask for.
const DefaultMaxDays = 100_000

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RunReader is the read side of the run store.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]sqlite.RunRecord, error)
	GetRun(ctx context.Context, runID string) (sqlite.RunRecord, error)
	Ledger(ctx context.Context, runID string) ([]model.LedgerEntry, error)
	Series(ctx context.Context, runID string) ([]model.PricePoint, error)
}

// RunCache is the Redis view of recently published runs. Lookups return
// nil, nil on a miss.
type RunCache interface {
	Latest(ctx context.Context) (*storeredis.RunMessage, error)
	Get(ctx context.Context, runID string) (*storeredis.RunMessage, error)
	Recent(ctx context.Context, count int64) ([]storeredis.RunMessage, error)
}

// TradeJournal reads a run's recorded fills.
type TradeJournal interface {
	Trades(runID string) ([]execution.TradeRecord, error)
}

// Sink receives every completed run, e.g. a store or a publisher.
type Sink func(ctx context.Context, out *pipeline.Outcome)

// Server holds the dependencies of the HTTP handlers. Nil fields disable
// the features that need them.
type Server struct {
	Defaults model.SimParams
	MaxDays  int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Reader   RunReader
	Cache    RunCache
	Journal  TradeJournal
	Sinks    []Sink
	Hub      *Hub

	// FeedViaRedis skips the direct hub broadcast because a PubSubRouter
	// relays published runs back into the hub.
	FeedViaRedis bool
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// RegisterRoutes registers all HTTP routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/latest", s.handleLatest)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("/ws/run", s.handleStreamRun)
	mux.HandleFunc("/ws/runs", s.handleFeed)

	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	if s.Health != nil {
		mux.Handle("/healthz", s.Health)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sqlite.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// config parses and validates the request's simulation parameters.
func (s *Server) config(r *http.Request) (model.SimConfig, error) {
	p, err := ParseParams(r.URL.Query(), s.Defaults)
	if err != nil {
		return model.SimConfig{}, err
	}
	maxDays := s.MaxDays
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if p.Days > maxDays {
		return model.SimConfig{}, badParam("days", strconv.Itoa(p.Days)+" exceeds server limit "+strconv.Itoa(maxDays))
	}
	return model.NewSimConfig(p)
}

// run executes one pipeline and hands the outcome to sinks and the feed.
func (s *Server) run(ctx context.Context, cfg model.SimConfig, opts pipeline.Options) (*pipeline.Outcome, error) {
	opts.Logger = s.logger()
	opts.Metrics = s.Metrics
	out, err := pipeline.Run(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	s.complete(ctx, out)
	return out, nil
}

func (s *Server) complete(ctx context.Context, out *pipeline.Outcome) {
	if s.Health != nil {
		s.Health.SetLastRun(out.RunID, out.StartedAt)
	}
	for _, sink := range s.Sinks {
		sink(ctx, out)
	}
	if s.Hub != nil && !s.FeedViaRedis {
		data, err := json.Marshal(storeredis.NewRunMessage(out))
		if err != nil {
			s.logger().Error("encode feed message", "run_id", out.RunID, "error", err)
			return
		}
		s.Hub.Broadcast(data)
	}
}

// handleRun runs a simulation and returns its summary document.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet, http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method not allowed"})
		return
	}

	cfg, err := s.config(r)
	if err != nil {
		writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
		return
	}
	out, err := s.run(r.Context(), cfg, pipeline.Options{})
	if err != nil {
		writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report.NewDocument(out))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	switch {
	case s.Reader != nil:
		runs, err := s.Reader.ListRuns(r.Context(), limit)
		if err != nil {
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
		if runs == nil {
			runs = []sqlite.RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	case s.Cache != nil:
		msgs, err := s.Cache.Recent(r.Context(), int64(limit))
		if err != nil {
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	default:
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "run store not configured"})
	}
}

// RunDetail is the /api/runs/{id} response from the SQLite store.
type RunDetail struct {
	sqlite.RunRecord
	Ledger []model.LedgerEntry     `json:"ledger"`
	Series []model.PricePoint      `json:"series"`
	Fills  []execution.TradeRecord `json:"fills,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Reader == nil && s.Cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "run store not configured"})
		return
	}

	if s.Reader != nil {
		detail, err := s.runDetail(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, detail)
			return
		case !errors.Is(err, sqlite.ErrRunNotFound) || s.Cache == nil:
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
	}

	// Not stored (or no store): recently published runs are still in Redis.
	msg, err := s.Cache.Get(r.Context(), id)
	if err == nil && msg == nil {
		err = fmt.Errorf("%w: %s", sqlite.ErrRunNotFound, id)
	}
	if err != nil {
		writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) runDetail(ctx context.Context, id string) (*RunDetail, error) {
	rec, err := s.Reader.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &RunDetail{RunRecord: rec}
	if d.Ledger, err = s.Reader.Ledger(ctx, id); err != nil {
		return nil, err
	}
	if d.Series, err = s.Reader.Series(ctx, id); err != nil {
		return nil, err
	}
	if s.Journal != nil {
		if d.Fills, err = s.Journal.Trades(id); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// handleLatest returns the most recent run: the published message when
// Redis is configured, otherwise the newest stored run.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.Cache != nil:
		msg, err := s.Cache.Latest(r.Context())
		if err != nil {
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
		if msg == nil {
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: "no runs published"})
			return
		}
		writeJSON(w, http.StatusOK, msg)
	case s.Reader != nil:
		runs, err := s.Reader.ListRuns(r.Context(), 1)
		if err != nil {
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
		if len(runs) == 0 {
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: "no runs stored"})
			return
		}
		detail, err := s.runDetail(r.Context(), runs[0].RunID)
		if err != nil {
			writeJSON(w, statusFor(err), ErrorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, detail)
	default:
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "run store not configured"})
	}
}

// handleFeed subscribes the client to completed runs. last_seq replays
// buffered runs newer than that sequence number; a last_seq ahead of the
// hub replays the whole buffer.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "live feed not configured"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("ws upgrade failed", "error", err)
		return
	}
	lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
	if lastSeq > s.Hub.Seq() {
		// Sequence from before a restart.
		lastSeq = 0
	}
	s.Hub.HandleWSRequest(conn, lastSeq)
}
