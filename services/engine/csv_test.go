package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSVEpochMillis(t *testing.T) {
	path := writeCSV(t, "timestamp,open,high,low,close,volume\n"+
		"1600000000000,100,102,99,101,5000\n"+
		"1600014400000,101,103,100,102,6000\n")

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 (header skipped)", len(bars))
	}
	if bars[0].Timestamp != 1600000000000 || bars[0].Close != 101 {
		t.Fatalf("first bar = %+v", bars[0])
	}
}

func TestLoadCSVDatetimeFormat(t *testing.T) {
	path := writeCSV(t, "2020-09-13 12:26:40,100,102,99,101,5000\n")

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
	if bars[0].Timestamp != 1600000000000 {
		t.Fatalf("timestamp = %d, want 1600000000000", bars[0].Timestamp)
	}
}

func TestLoadCSVStripsByteOrderMark(t *testing.T) {
	path := writeCSV(t, "\ufeff1600000000000,100,102,99,101,5000\n")

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1 (BOM-prefixed timestamp must parse)", len(bars))
	}
	if bars[0].Timestamp != 1600000000000 {
		t.Fatalf("timestamp = %d, want 1600000000000", bars[0].Timestamp)
	}
}

func TestLoadCSVSortsAndDeduplicates(t *testing.T) {
	path := writeCSV(t, ""+
		"2000,101,103,100,102,6000\n"+
		"1000,100,102,99,101,5000\n"+
		"2000,111,113,110,112,7000\n") // duplicate timestamp, last row wins

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 after dedupe", len(bars))
	}
	if bars[0].Timestamp != 1000 || bars[1].Timestamp != 2000 {
		t.Fatal("bars not sorted by timestamp")
	}
	if bars[1].Close != 112 {
		t.Fatalf("dup close = %v, want last-seen 112", bars[1].Close)
	}
}

func TestLoadCSVRejectsEmpty(t *testing.T) {
	path := writeCSV(t, "timestamp,open,high,low,close,volume\n")
	if _, err := LoadCSV(path); err == nil {
		t.Fatal("expected error for a file with no parsable bars")
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
