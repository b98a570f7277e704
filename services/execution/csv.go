package execution

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func fmtTs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

// WriteTradesCSV writes one row per ClosedTrade to path, creating parent
// directories as needed.
func WriteTradesCSV(path string, trades []ClosedTrade) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"symbol", "entry_ts", "entry_price_eff", "qty", "fee_in",
		"exit_ts", "exit_price_eff", "fee_out", "gross_pnl", "net_pnl",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			fmtTs(t.EntryTs),
			strconv.FormatFloat(t.EntryPrice, 'f', 8, 64),
			strconv.FormatFloat(t.Quantity, 'f', 8, 64),
			strconv.FormatFloat(t.FeeIn, 'f', 2, 64),
			fmtTs(t.ExitTs),
			strconv.FormatFloat(t.ExitPrice, 'f', 8, 64),
			strconv.FormatFloat(t.FeeOut, 'f', 2, 64),
			strconv.FormatFloat(t.GrossPnl, 'f', 2, 64),
			strconv.FormatFloat(t.NetPnl, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
