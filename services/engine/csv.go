package engine

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadCSV loads OHLCV bars from a CSV file with columns
// timestamp,open,high,low,close,volume. The timestamp column accepts either
// epoch milliseconds or "2006-01-02 15:04:05" datetimes (UTC). A header row is
// skipped when present; malformed rows are dropped. Bars are sorted by
// timestamp and duplicate timestamps keep the last row seen.
func LoadCSV(filename string) ([]Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	bars := make([]Bar, 0, 1_000)
	lineIndex := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			lineIndex++
			continue
		}
		if len(rec) < 6 {
			lineIndex++
			continue
		}

		ts, ok := parseTimestamp(strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff"))
		if !ok {
			// header or junk row
			lineIndex++
			continue
		}

		open, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		high, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		low, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		cls, err4 := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			lineIndex++
			continue
		}
		volume, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		if err != nil {
			volume = 0
		}

		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    volume,
		})
		lineIndex++
	}

	if len(bars) > 1 {
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
		uniq := make([]Bar, 0, len(bars))
		var lastTs int64 = -1
		for _, b := range bars {
			if b.Timestamp == lastTs {
				uniq[len(uniq)-1] = b
				continue
			}
			uniq = append(uniq, b)
			lastTs = b.Timestamp
		}
		bars = uniq
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars parsed from %s", filename)
	}
	return bars, nil
}

func parseTimestamp(s string) (int64, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, true
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return t.UnixMilli(), true
	}
	return 0, false
}
