// cmd/backtest runs one seeded price simulation and crossover backtest,
// prints the performance summary and optionally writes the chart, CSV
// exports and the configured sinks.
//
// Usage:
//
//	go run ./cmd/backtest -seed=42 -days=260 -plot=simulation_plot.png
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crossover-sim/config"
	"crossover-sim/internal/execution"
	"crossover-sim/internal/logger"
	"crossover-sim/internal/model"
	"crossover-sim/internal/notification"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/plot"
	"crossover-sim/internal/report"
	chstore "crossover-sim/internal/store/clickhouse"
	storeredis "crossover-sim/internal/store/redis"
	sqlitestore "crossover-sim/internal/store/sqlite"
)

type options struct {
	params     model.SimParams
	plotFile   string
	outDir     string
	csvDir     string
	dbPath     string
	redisAddr  string
	redisPass  string
	clickhouse string
	webhook    string
	tgToken    string
	tgChat     string
	jsonOut    bool
	logLevel   string
}

func parseFlags(cfg *config.Config) (options, error) {
	p := cfg.SimParams()
	var o options
	endDate := p.EndDate.Format(model.DateLayout)

	flag.IntVar(&p.Days, "days", p.Days, "Number of simulated days")
	flag.Float64Var(&p.StartPrice, "start-price", p.StartPrice, "Opening price of the first day")
	flag.Int64Var(&p.Seed, "seed", p.Seed, "Random seed (0..4294967295)")
	flag.Float64Var(&p.Mu, "mu", p.Mu, "Daily drift")
	flag.Float64Var(&p.Sigma, "sigma", p.Sigma, "Daily volatility")
	flag.Float64Var(&p.FeeRate, "fee", p.FeeRate, "Proportional fee per trade")
	flag.Float64Var(&p.VolumeThreshold, "volume-threshold", p.VolumeThreshold, "Volume confirmation multiple of VOL_SMA_10")
	flag.Float64Var(&p.InitialCapital, "capital", p.InitialCapital, "Initial cash")
	flag.Float64Var(&p.BaseVolume, "base-volume", p.BaseVolume, "Base daily volume")
	flag.StringVar(&endDate, "end-date", endDate, "Date of the last simulated day (YYYY-MM-DD)")
	flag.StringVar(&o.plotFile, "plot", cfg.PlotFile, "Chart file name inside -out (empty disables)")
	flag.StringVar(&o.outDir, "out", cfg.OutputDir, "Output directory for the chart")
	flag.StringVar(&o.csvDir, "csv-dir", "", "Directory for ledger.csv and trades.csv (empty disables)")
	flag.StringVar(&o.dbPath, "db", cfg.SQLitePath, "SQLite run store path (empty disables)")
	flag.StringVar(&o.redisAddr, "redis", cfg.RedisAddr, "Redis address for run publishing (empty disables)")
	flag.StringVar(&o.clickhouse, "clickhouse", cfg.ClickHouseDSN, "ClickHouse DSN for analytics export (empty disables)")
	flag.StringVar(&o.webhook, "webhook", cfg.WebhookURL, "Webhook URL for the completion alert (empty disables)")
	flag.BoolVar(&o.jsonOut, "json", false, "Print the JSON summary document instead of the text box")
	flag.StringVar(&o.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	d, err := time.Parse(model.DateLayout, endDate)
	if err != nil {
		return o, fmt.Errorf("%w: end-date: %v", model.ErrInvalidConfig, err)
	}
	p.EndDate = d
	o.params = p
	o.redisPass = cfg.RedisPassword
	o.tgToken = cfg.TelegramBotToken
	o.tgChat = cfg.TelegramChatID
	return o, nil
}

func main() {
	cfg := config.Load()
	opts, err := parseFlags(cfg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	slogger := logger.Init("backtest", logger.ParseLevel(opts.logLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, slogger); err != nil {
		slogger.Error("backtest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log *slog.Logger) error {
	simCfg, err := model.NewSimConfig(o.params)
	if err != nil {
		return err
	}
	// Reject a bad chart name before spending time on the run.
	if o.plotFile != "" {
		if err := plot.ValidateFilename(o.plotFile); err != nil {
			return err
		}
	}

	out, err := pipeline.Run(ctx, simCfg, pipeline.Options{Logger: log})
	if err != nil {
		return err
	}

	if o.jsonOut {
		doc, err := report.JSON(out)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		fmt.Println(string(doc))
	} else if err := report.Render(os.Stdout, out.RunID, out.Summary); err != nil {
		return err
	}

	if o.plotFile != "" {
		path, err := plot.Render(out.Frame, out.Result.Trades, o.outDir, o.plotFile)
		if err != nil {
			return err
		}
		log.Info("chart written", "path", path)
	}

	if o.csvDir != "" {
		if err := writeCSV(o.csvDir, out); err != nil {
			return err
		}
		log.Info("csv written", "dir", o.csvDir)
	}

	if o.dbPath != "" {
		if err := saveSQLite(ctx, o.dbPath, out, log); err != nil {
			return err
		}
	}
	if o.clickhouse != "" {
		if err := exportClickHouse(ctx, o.clickhouse, out); err != nil {
			return err
		}
		log.Info("exported to clickhouse", "run_id", out.RunID)
	}
	if o.redisAddr != "" {
		if err := publishRedis(ctx, o.redisAddr, o.redisPass, out, log); err != nil {
			return err
		}
	}

	n := notification.New(log, o.webhook, o.tgToken, o.tgChat)
	if err := n.Send(ctx, notification.RunAlert(out.RunID, out.Summary)); err != nil {
		return fmt.Errorf("alert: %w", err)
	}
	return nil
}

func writeCSV(dir string, out *pipeline.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csv dir: %w", err)
	}
	write := func(name string, fn func(f *os.File) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		return f.Close()
	}
	if err := write("ledger.csv", func(f *os.File) error { return report.LedgerCSV(f, out.Result.Ledger) }); err != nil {
		return err
	}
	return write("trades.csv", func(f *os.File) error { return report.TradesCSV(f, out.Result.Trades) })
}

func saveSQLite(ctx context.Context, path string, out *pipeline.Outcome, log *slog.Logger) error {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path, Logger: log})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.SaveOutcome(ctx, out); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	j, err := execution.NewJournal(path, log)
	if err != nil {
		return err
	}
	defer j.Close()
	if err := j.RecordFills(out.RunID, out.Result.Fills); err != nil {
		return err
	}
	log.Info("run stored", "path", path, "run_id", out.RunID, "fills", len(out.Result.Fills))
	return nil
}

func exportClickHouse(ctx context.Context, dsn string, out *pipeline.Outcome) error {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	conn, err := chstore.NewConn(cctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.EnsureSchema(cctx); err != nil {
		return err
	}
	return chstore.NewExporter(conn).ExportOutcome(cctx, out)
}

func publishRedis(ctx context.Context, addr, password string, out *pipeline.Outcome, log *slog.Logger) error {
	w, err := storeredis.New(storeredis.WriterConfig{Addr: addr, Password: password, Logger: log})
	if err != nil {
		return err
	}
	defer w.Close()
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return w.Publish(pctx, storeredis.NewRunMessage(out))
}
