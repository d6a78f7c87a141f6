// Package notification delivers run alerts to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crossover-sim/internal/portfolio"
	"crossover-sim/internal/report"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	RunID   string     `json:"run_id,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// RunAlert summarises a completed run. A losing run is a warning.
func RunAlert(runID string, s portfolio.Summary) Alert {
	level := AlertInfo
	if s.ROI < 0 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		RunID: runID,
		Title: "Backtest complete",
		Message: fmt.Sprintf("final value %s, net profit %s (%s), max drawdown %s, %d trades, win rate %s",
			report.Money(s.FinalValue), report.Money(s.NetProfit), report.Percent(s.ROI),
			report.Percent(s.MaxDrawdown), s.TradeCount, report.Percent(s.WinRate)),
	}
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier; nil uses slog.Default.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, alert.Title, "run_id", alert.RunID, "message", alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the alert fan-out: always the log notifier, plus a webhook
// and Telegram when configured.
func New(log *slog.Logger, webhookURL, telegramToken, telegramChat string) Notifier {
	m := Multi{NewLogNotifier(log)}
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL))
	}
	if telegramToken != "" && telegramChat != "" {
		m = append(m, NewTelegramNotifier(telegramToken, telegramChat))
	}
	return m
}
