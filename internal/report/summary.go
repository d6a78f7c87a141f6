// Package report renders run results for humans and downstream tools:
// a boxed text summary, CSV exports of the ledger and trade log, and a JSON
// document.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"crossover-sim/internal/portfolio"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const boxWidth = 40

var printer = message.NewPrinter(language.English)

// Money rounds v half away from zero to cents and groups thousands,
// e.g. 1234567.891 → "$1,234,567.89".
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + "$" + printer.Sprintf("%.2f", d.InexactFloat64())
}

// Percent renders a fraction as a percentage with two decimals.
func Percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Lines returns the summary rows as label/value pairs in display order.
func Lines(s portfolio.Summary) [][2]string {
	return [][2]string{
		{"Initial Capital", Money(s.InitialCapital)},
		{"Final Value", Money(s.FinalValue)},
		{"Net Profit", fmt.Sprintf("%s (%s)", Money(s.NetProfit), Percent(s.ROI))},
		{"Max Drawdown", Percent(s.MaxDrawdown)},
		{"Total Trades", printer.Sprintf("%d", s.TradeCount)},
		{"Win Rate", Percent(s.WinRate)},
	}
}

// Render writes the boxed performance summary.
func Render(w io.Writer, runID string, s portfolio.Summary) error {
	var sb strings.Builder
	bar := strings.Repeat("═", boxWidth)

	sb.WriteString("╔" + bar + "╗\n")
	sb.WriteString(boxLine(center("FINAL PERFORMANCE RESULTS", boxWidth-2)))
	if runID != "" {
		sb.WriteString(boxLine(center(runID, boxWidth-2)))
	}
	sb.WriteString("╠" + bar + "╣\n")
	for _, l := range Lines(s) {
		sb.WriteString(boxLine(fmt.Sprintf("%-16s %s", l[0]+":", l[1])))
	}
	sb.WriteString("╚" + bar + "╝\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func boxLine(content string) string {
	pad := boxWidth - 2 - utf8.RuneCountInString(content)
	if pad < 0 {
		pad = 0
	}
	return "║ " + content + strings.Repeat(" ", pad) + " ║\n"
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s
}
