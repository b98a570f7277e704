package execution

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "BTCUSDT_test_net.csv")
	trades := []ClosedTrade{
		{
			Symbol:  "BTCUSDT",
			EntryTs: 1600000000000, EntryPrice: 105, Quantity: 2, FeeIn: 2.1,
			ExitTs: 1600014400000, ExitPrice: 120, FeeOut: 2.4,
			GrossPnl: 30, NetPnl: 25.5,
		},
	}

	if err := WriteTradesCSV(path, trades); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("parent dir not created: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header plus one trade", len(rows))
	}
	if rows[0][0] != "symbol" || rows[0][9] != "net_pnl" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	row := rows[1]
	if row[0] != "BTCUSDT" {
		t.Fatalf("symbol = %q", row[0])
	}
	if row[1] != "2020-09-13 12:26:40" {
		t.Fatalf("entry ts = %q, want formatted UTC datetime", row[1])
	}
	if row[9] != "25.50" {
		t.Fatalf("net pnl = %q, want 25.50", row[9])
	}
}
