package report

import (
	"fmt"
	"io"
	"strings"

	"crossover-sim/internal/model"
)

// LedgerCSV renders the daily ledger as CSV.
func LedgerCSV(w io.Writer, ledger []model.LedgerEntry) error {
	var sb strings.Builder

	sb.WriteString("date,price,ema_short,sma_medium,sma_long,cash,quantity,portfolio_value\n")
	for _, e := range ledger {
		sb.WriteString(fmt.Sprintf("%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.10f,%.6f\n",
			e.Date.Format(model.DateLayout),
			e.Price,
			e.EMAShort,
			e.SMAMedium,
			e.SMALong,
			e.Cash,
			e.Quantity,
			e.Value,
		))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// TradesCSV renders the trade log as CSV.
func TradesCSV(w io.Writer, trades []model.Trade) error {
	var sb strings.Builder

	sb.WriteString("date,side,price,quantity,value\n")
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%.6f,%.10f,%.6f\n",
			t.Date.Format(model.DateLayout),
			t.Side,
			t.Price,
			t.Quantity,
			t.Value,
		))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
