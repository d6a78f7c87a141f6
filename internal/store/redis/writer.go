package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/portfolio"

	goredis "github.com/go-redis/redis/v8"
)

// Key layout.
const (
	StreamKey     = "sim:runs"
	LatestKey     = "sim:runs:latest"
	PubSubChannel = "pub:sim:runs"
	runKeyPrefix  = "sim:run:"

	streamMaxLen     = 1000
	defaultLatestTTL = 24 * time.Hour
)

// RunKey is the key holding one run's message.
func RunKey(runID string) string { return runKeyPrefix + runID }

// RunMessage is the payload published for each completed run.
type RunMessage struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs float64           `json:"duration_ms"`
	Params     model.SimParams   `json:"params"`
	Summary    portfolio.Summary `json:"summary"`
	Trades     []model.Trade     `json:"trades"`
}

// NewRunMessage extracts the published fields of an outcome.
func NewRunMessage(out *pipeline.Outcome) RunMessage {
	msg := RunMessage{
		RunID:      out.RunID,
		StartedAt:  out.StartedAt.UTC(),
		DurationMs: float64(out.Duration.Microseconds()) / 1000.0,
		Params:     out.Params,
		Summary:    out.Summary,
	}
	if out.Result != nil {
		msg.Trades = out.Result.Trades
	}
	return msg
}

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Logger   *slog.Logger
}

// Writer publishes run summaries to Redis: XADD to the run stream, SET
// the latest and per-run keys, and PUBLISH for live subscribers.
type Writer struct {
	client *goredis.Client
	log    *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "redis")
	log.Info("connected", "addr", cfg.Addr)
	return &Writer{client: client, log: log}, nil
}

// Publish writes one run message in a single pipeline round trip.
func (w *Writer) Publish(ctx context.Context, msg RunMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal run message: %w", err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id": msg.RunID,
			"data":   jsonData,
		},
	})
	pipe.Set(ctx, LatestKey, jsonData, defaultLatestTTL)
	pipe.Set(ctx, RunKey(msg.RunID), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, PubSubChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for run %s: %w", msg.RunID, err)
	}
	w.log.Debug("published run", "run_id", msg.RunID)
	return nil
}

// Latest returns the most recently published run.
// Returns nil, nil when nothing has been published.
func (w *Writer) Latest(ctx context.Context) (*RunMessage, error) {
	return w.get(ctx, LatestKey)
}

// Get returns a published run by ID, or nil, nil when it has expired.
func (w *Writer) Get(ctx context.Context, runID string) (*RunMessage, error) {
	return w.get(ctx, RunKey(runID))
}

func (w *Writer) get(ctx context.Context, key string) (*RunMessage, error) {
	data, err := w.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	var msg RunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &msg, nil
}

// Recent reads up to count runs from the stream, newest first.
func (w *Writer) Recent(ctx context.Context, count int64) ([]RunMessage, error) {
	entries, err := w.client.XRevRangeN(ctx, StreamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey, err)
	}
	return decodeStream(entries)
}

func decodeStream(entries []goredis.XMessage) ([]RunMessage, error) {
	out := make([]RunMessage, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["data"].(string)
		if !ok {
			continue
		}
		var msg RunMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal stream entry %s: %w", e.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
