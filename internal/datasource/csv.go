package datasource

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/logger"
)

// CSVSource reads OHLCV bars from local files under Dir, one file per
// symbol named "<symbol>.csv" with header
// "timestamp,open,high,low,close,volume". Grounded on the teacher's
// localFileDataProvider, generalized from its daily-bars-only,
// secondary-delegates-everything shape to OHLCV at any Timestep.
type CSVSource struct {
	Dir       string
	secondary Source
}

// NewCSVSource builds a CSVSource rooted at dir, falling back to secondary
// (may be nil) for symbols it doesn't have a file for.
func NewCSVSource(dir string, secondary Source) *CSVSource {
	return &CSVSource{Dir: dir, secondary: secondary}
}

func (c *CSVSource) Secondary() Source { return c.secondary }

// GetBars loads bars for a.Symbol from "<Dir>/<Symbol>.csv", filtering to
// [from, to]. Timestep is not interpreted here — the file is assumed to
// already be at the requested granularity, matching the teacher's
// localFileDataProvider (which never resamples either).
func (c *CSVSource) GetBars(a asset.Asset, quote asset.Asset, ts asset.Timestep, from, to time.Time) ([]asset.Bar, error) {
	path := filepath.Join(c.Dir, a.Symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv source: %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv source: %s: no data rows", path)
	}

	var out []asset.Bar
	for _, row := range rows[1:] {
		if len(row) < 6 {
			logger.Debugf("datasource: skipping malformed row in %s", path)
			continue
		}
		ts, err := parseCSVTimestamp(row[0])
		if err != nil {
			continue
		}
		if ts.Before(from) || ts.After(to) {
			continue
		}
		bar := asset.Bar{
			Ts:     ts.Unix(),
			Open:   parseDecimalField(row[1]),
			High:   parseDecimalField(row[2]),
			Low:    parseDecimalField(row[3]),
			Close:  parseDecimalField(row[4]),
			Volume: parseDecimalField(row[5]),
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseCSVTimestamp(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Parse("2006-01-02T15:04:05Z07:00", s)
}

func parseDecimalField(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
