package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"crossover-sim/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Simulation parameters
	Days            int
	StartPrice      float64
	Seed            int64
	Mu              float64
	Sigma           float64
	FeeRate         float64
	VolumeThreshold float64
	InitialCapital  float64
	BaseVolume      float64
	EndDate         time.Time

	// Infrastructure (empty disables the sink)
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	ClickHouseDSN string
	HTTPAddr      string
	MetricsAddr   string

	// Output
	OutputDir string
	PlotFile  string

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads configuration from environment variables. Unset simulation
// keys fall back to model.DefaultSimParams.
func Load() *Config {
	d := model.DefaultSimParams()
	return &Config{
		Days:            getEnvInt("SIM_DAYS", d.Days),
		StartPrice:      getEnvFloat("SIM_START_PRICE", d.StartPrice),
		Seed:            int64(getEnvInt("SIM_SEED", int(d.Seed))),
		Mu:              getEnvFloat("SIM_MU", d.Mu),
		Sigma:           getEnvFloat("SIM_SIGMA", d.Sigma),
		FeeRate:         getEnvFloat("SIM_FEE_RATE", d.FeeRate),
		VolumeThreshold: getEnvFloat("SIM_VOLUME_THRESHOLD", d.VolumeThreshold),
		InitialCapital:  getEnvFloat("SIM_INITIAL_CAPITAL", d.InitialCapital),
		BaseVolume:      getEnvFloat("SIM_BASE_VOLUME", d.BaseVolume),
		EndDate:         getEnvDate("SIM_END_DATE", d.EndDate),

		SQLitePath:    getEnv("SQLITE_PATH", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),

		OutputDir: getEnv("OUTPUT_DIR", "."),
		PlotFile:  getEnv("PLOT_FILE", "simulation_plot.png"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// SimParams returns the simulation parameter bundle. It is not validated;
// pass it through model.NewSimConfig.
func (c *Config) SimParams() model.SimParams {
	return model.SimParams{
		Days:            c.Days,
		StartPrice:      c.StartPrice,
		Seed:            c.Seed,
		Mu:              c.Mu,
		Sigma:           c.Sigma,
		FeeRate:         c.FeeRate,
		VolumeThreshold: c.VolumeThreshold,
		InitialCapital:  c.InitialCapital,
		BaseVolume:      c.BaseVolume,
		EndDate:         c.EndDate,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDate(key string, fallback time.Time) time.Time {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.Parse(model.DateLayout, v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback.Format(model.DateLayout))
		return fallback
	}
	return d
}
