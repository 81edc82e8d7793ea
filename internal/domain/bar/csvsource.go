package bar

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVPath builds the pre-hydration file path contract from spec §6:
// data/raw/{instrument_lower}/1m/{YYYY}/{MM}/{INSTRUMENT}_1m_{YYYY-MM-DD}.csv
func CSVPath(root, instrument string, tradingDate time.Time) string {
	lower := strings.ToLower(instrument)
	return filepath.Join(root, lower, "1m",
		fmt.Sprintf("%04d", tradingDate.Year()),
		fmt.Sprintf("%02d", tradingDate.Month()),
		fmt.Sprintf("%s_1m_%s.csv", strings.ToUpper(instrument), tradingDate.Format("2006-01-02")))
}

// ReadCSV reads bars from a 1-minute CSV file, skipping rows outside
// [windowStart, windowEnd) in UTC and silently skipping malformed rows
// (spec §6). Callers convert their Chicago window bounds to UTC before
// calling, since the CSV timestamp column is already UTC.
func ReadCSV(path string, windowStartUTC, windowEndUTC time.Time) ([]Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("bar: open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// header
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("bar: read csv header %s: %w", path, err)
	}

	var bars []Bar
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		b, ok := parseRow(rec)
		if !ok {
			skipped++
			continue
		}
		if b.StartUTC.Before(windowStartUTC) || !b.StartUTC.Before(windowEndUTC) {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
	return bars, skipped, nil
}

func parseRow(rec []string) (Bar, bool) {
	if len(rec) < 5 {
		return Bar{}, false
	}
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return Bar{}, false
	}
	open, err1 := strconv.ParseFloat(rec[1], 64)
	high, err2 := strconv.ParseFloat(rec[2], 64)
	low, err3 := strconv.ParseFloat(rec[3], 64)
	closeP, err4 := strconv.ParseFloat(rec[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Bar{}, false
	}
	b := Bar{StartUTC: ts.UTC(), Open: open, High: high, Low: low, Close: closeP}
	if len(rec) >= 6 {
		if vol, err := strconv.ParseFloat(rec[5], 64); err == nil {
			b.Volume = &vol
		}
	}
	if err := b.Validate(); err != nil {
		return Bar{}, false
	}
	return b, true
}
