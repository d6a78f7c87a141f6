// cmd/simserver serves simulation runs over HTTP and WebSocket and fans
// completed runs out to the configured stores.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crossover-sim/config"
	"crossover-sim/internal/execution"
	"crossover-sim/internal/gateway"
	"crossover-sim/internal/logger"
	"crossover-sim/internal/metrics"
	"crossover-sim/internal/notification"
	"crossover-sim/internal/pipeline"
	chstore "crossover-sim/internal/store/clickhouse"
	storeredis "crossover-sim/internal/store/redis"
	sqlitestore "crossover-sim/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
)

const (
	replaySize     = 256
	sinkQueueSize  = 64
	breakerFails   = 5
	breakerTimeout = 10 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()
	slogger := logger.Init("simserver", logger.ParseLevel(cfg.LogLevel))
	slogger.Info("starting", "addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	hub := gateway.NewHub(replaySize, slogger)
	hub.OnClientCount = func(n int) { slogger.Debug("feed clients", "count", n) }

	srv := &gateway.Server{
		Defaults: cfg.SimParams(),
		Logger:   slogger,
		Metrics:  m,
		Health:   health,
		Hub:      hub,
	}

	var (
		wg      sync.WaitGroup
		closers []func() error
		sqlDB   *sql.DB
		rdb     *goredis.Client
	)

	// SQLite: runs, series and ledger through the writer queue, fills
	// through the journal.
	if cfg.SQLitePath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath, Logger: slogger})
		if err != nil {
			log.Fatalf("[simserver] sqlite writer: %v", err)
		}
		reader, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[simserver] sqlite reader: %v", err)
		}
		journal, err := execution.NewJournal(cfg.SQLitePath, slogger)
		if err != nil {
			log.Fatalf("[simserver] journal: %v", err)
		}
		closers = append(closers, w.Close, reader.Close, journal.Close)
		sqlDB = w.DB()
		srv.Reader = reader
		srv.Journal = journal

		ch := make(chan *pipeline.Outcome, sinkQueueSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, ch)
		}()
		srv.Sinks = append(srv.Sinks, enqueue("sqlite", ch, m, slogger), func(_ context.Context, out *pipeline.Outcome) {
			start := time.Now()
			err := journal.RecordFills(out.RunID, out.Result.Fills)
			m.ObserveSink("journal", time.Since(start), err)
			if err != nil {
				slogger.Error("journal fills failed", "run_id", out.RunID, "error", err)
			}
		})
		log.Printf("[simserver] sqlite store at %s", cfg.SQLitePath)
	}

	// Redis: publish through a circuit breaker, relay the pub/sub channel
	// into the live feed.
	if cfg.RedisAddr != "" {
		w, err := storeredis.New(storeredis.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Logger: slogger})
		if err != nil {
			log.Fatalf("[simserver] redis connection failed: %v", err)
		}
		closers = append(closers, w.Close)
		rdb = w.Client()
		srv.Cache = w

		cb := storeredis.NewCircuitBreaker(breakerFails, breakerTimeout)
		cb.OnStateChange = func(from, to storeredis.State) {
			m.CircuitBreaker.Set(float64(to))
			if to == storeredis.StateOpen {
				m.CircuitTrips.Inc()
			}
			slogger.Warn("redis circuit state change", "from", from.String(), "to", to.String())
		}
		bw := storeredis.NewBufferedWriter(ctx, w, cb, 0, slogger)
		bw.OnBuffer = m.RunsBuffered.Inc
		bw.OnFlush = func(n int) { m.RunsFlushed.Add(float64(n)) }

		srv.Sinks = append(srv.Sinks, func(sctx context.Context, out *pipeline.Outcome) {
			start := time.Now()
			err := bw.Publish(context.WithoutCancel(sctx), storeredis.NewRunMessage(out))
			m.ObserveSink("redis", time.Since(start), err)
			if err != nil {
				slogger.Error("redis publish failed", "run_id", out.RunID, "error", err)
			}
		})

		router := gateway.NewPubSubRouter(hub, rdb, slogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.Run(ctx)
		}()
		srv.FeedViaRedis = true
		log.Printf("[simserver] redis connected at %s", cfg.RedisAddr)
	}

	// ClickHouse: analytics export off the request path.
	if cfg.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			log.Fatalf("[simserver] clickhouse: %v", err)
		}
		if err := conn.EnsureSchema(ctx); err != nil {
			log.Fatalf("[simserver] clickhouse schema: %v", err)
		}
		closers = append(closers, conn.Close)
		exp := chstore.NewExporter(conn)

		ch := make(chan *pipeline.Outcome, sinkQueueSize)
		export := func(out *pipeline.Outcome) {
			start := time.Now()
			ectx, ecancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer ecancel()
			err := exp.ExportOutcome(ectx, out)
			m.ObserveSink("clickhouse", time.Since(start), err)
			if err != nil {
				slogger.Error("clickhouse export failed", "run_id", out.RunID, "error", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case out := <-ch:
					export(out)
				case <-ctx.Done():
					for len(ch) > 0 {
						export(<-ch)
					}
					return
				}
			}
		}()
		srv.Sinks = append(srv.Sinks, enqueue("clickhouse", ch, m, slogger))
	}

	notifier := notification.New(slogger, cfg.WebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID)
	srv.Sinks = append(srv.Sinks, func(_ context.Context, out *pipeline.Outcome) {
		go func() {
			nctx, ncancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer ncancel()
			if err := notifier.Send(nctx, notification.RunAlert(out.RunID, out.Summary)); err != nil {
				slogger.Warn("run alert failed", "run_id", out.RunID, "error", err)
			}
		}()
	})

	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, m, health, slogger)
		metricsSrv.Start()
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[simserver] serving at http://localhost%s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[simserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[simserver] shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("http shutdown", "error", err)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	cancel()

	// Sink loops drain their queues on cancel; wait before closing the
	// stores behind them.
	wg.Wait()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slogger.Warn("close", "error", err)
		}
	}
	log.Println("[simserver] stopped")
}

// enqueue returns a sink that queues without blocking the request; a full
// queue drops the run and counts a sink error.
func enqueue(name string, ch chan<- *pipeline.Outcome, m *metrics.Metrics, log *slog.Logger) gateway.Sink {
	return func(_ context.Context, out *pipeline.Outcome) {
		select {
		case ch <- out:
		default:
			m.SinkErrors.WithLabelValues(name).Inc()
			log.Warn("sink queue full, dropping run", "sink", name, "run_id", out.RunID)
		}
	}
}
