// Package barstore implements the Bar Store (C2): per-asset historical bar
// storage, timestep aggregation, sliding-window trim, and LRU eviction under
// a memory cap.
//
// The LRU bookkeeping follows the design-notes guidance to replace
// "OrderedDict" with a hash map plus doubly-linked list (container/list
// here) for O(1) move-to-end; the teacher's own data providers
// (internal/data/massive.go's GetBars, internal/data/localCSV.go) ground the
// aggregation/forward-fill behavior this package generalizes.
package barstore

import (
	"container/list"
	"sort"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	// TrimFrequencyBars is N in "every Nth call the store runs its trim
	// pass" (§4.2).
	TrimFrequencyBars = 1000
	// HistoryWindowBars bounds how much history is retained per asset, in
	// units of that asset's own timestep.
	HistoryWindowBars = 5000
	// DefaultMaxStorageBytes is the default memory cap (§5).
	DefaultMaxStorageBytes = 1_000_000_000
)

// entry is one stored BarSeries plus its LRU list element.
type entry struct {
	series *asset.BarSeries
	elem   *list.Element // element in Store.lru, Value is the key
}

// Store owns all historical bars consumed during a backtest.
type Store struct {
	source map[key]*entry // native/source series, keyed by (asset, quote, timestep)
	agg    map[key]*entry // on-demand aggregated series, cached by target timestep

	lruSource *list.List // front = most-recently-used
	lruAgg    *list.List

	maxBytes int64
	calls    int64 // total get_historical_prices calls, drives the trim tick
}

// New creates an empty Store with the given memory cap. A maxBytes of 0
// selects DefaultMaxStorageBytes.
func New(maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxStorageBytes
	}
	return &Store{
		source:    make(map[key]*entry),
		agg:       make(map[key]*entry),
		lruSource: list.New(),
		lruAgg:    list.New(),
		maxBytes:  maxBytes,
	}
}

// Seed loads a native source series directly, e.g. from a data vendor
// adapter or a synthetic/local-CSV generator. Vendor-native timesteps
// (daily bars from Yahoo, etc.) should be seeded at their own timestep —
// direct-timestep data is preferred over aggregation for the same key.
//
// After storing, every native series at this timestep (across every asset
// seeded so far) is reindexed onto the union of timestamps observed across
// all of them — §4.2's missing-data policy — so a bucket one symbol traded
// but another didn't shows up as a forward-filled, Missing=true placeholder
// in the quiet symbol's series instead of a silent gap.
func (s *Store) Seed(a, quote asset.Asset, ts asset.Timestep, bars []asset.Bar) {
	k := key{a, quote, ts}
	series := &asset.BarSeries{Asset: a, Quote: quote, Timestep: ts, Bars: append([]asset.Bar(nil), bars...)}
	sort.Slice(series.Bars, func(i, j int) bool { return series.Bars[i].Ts < series.Bars[j].Ts })
	s.putSource(k, series)
	s.reindexTimestep(ts)
}

// reindexTimestep rebuilds the shared timestamp grid for every native
// series stored at ts, then forward-fills each series onto it within its
// own observed date range.
func (s *Store) reindexTimestep(ts asset.Timestep) {
	grid := s.mergedGrid(ts)
	if len(grid) == 0 {
		return
	}
	for k, e := range s.source {
		if k.t != ts {
			continue
		}
		e.series.Bars = reindexOnto(e.series.Bars, grid)
	}
}

// mergedGrid collects the sorted, deduplicated union of bar timestamps
// across every native series seeded at ts.
func (s *Store) mergedGrid(ts asset.Timestep) []int64 {
	seen := make(map[int64]struct{})
	for k, e := range s.source {
		if k.t != ts {
			continue
		}
		for _, b := range e.series.Bars {
			seen[b.Ts] = struct{}{}
		}
	}
	grid := make([]int64, 0, len(seen))
	for t := range seen {
		grid = append(grid, t)
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })
	return grid
}

// reindexOnto forward-fills bars onto every grid timestamp between the
// series' own first and last bar (never extending the range): a grid slot
// the series itself has no bar for becomes a Missing=true placeholder with
// OHLC pinned to the prior close and volume zeroed, per §4.2.
func reindexOnto(bars []asset.Bar, grid []int64) []asset.Bar {
	if len(bars) == 0 {
		return bars
	}
	byTs := make(map[int64]asset.Bar, len(bars))
	for _, b := range bars {
		byTs[b.Ts] = b
	}
	first, last := bars[0].Ts, bars[len(bars)-1].Ts

	out := make([]asset.Bar, 0, len(grid))
	var prevClose decimal.Decimal
	haveReal := false
	for _, ts := range grid {
		if ts < first || ts > last {
			continue
		}
		if b, ok := byTs[ts]; ok {
			out = append(out, b)
			prevClose = b.Close
			haveReal = true
			continue
		}
		if !haveReal {
			continue // nothing to forward-fill from yet
		}
		out = append(out, asset.Bar{
			Ts:      ts,
			Open:    prevClose,
			High:    prevClose,
			Low:     prevClose,
			Close:   prevClose,
			Volume:  decimal.Zero,
			Missing: true,
		})
	}
	return out
}

func (s *Store) putSource(k key, series *asset.BarSeries) {
	if e, ok := s.source[k]; ok {
		e.series = series
		s.lruSource.MoveToFront(e.elem)
		return
	}
	elem := s.lruSource.PushFront(k)
	s.source[k] = &entry{series: series, elem: elem}
}

func (s *Store) touchSource(k key) {
	if e, ok := s.source[k]; ok {
		s.lruSource.MoveToFront(e.elem)
	}
}

func (s *Store) touchAgg(k key) {
	if e, ok := s.agg[k]; ok {
		s.lruAgg.MoveToFront(e.elem)
	}
}

// nativeSeries returns the source series for (a, quote, ts) if one was
// seeded at exactly that timestep.
func (s *Store) nativeSeries(a, quote asset.Asset, ts asset.Timestep) (*asset.BarSeries, bool) {
	k := key{a, quote, ts}
	if e, ok := s.source[k]; ok {
		s.touchSource(k)
		return e.series, true
	}
	return nil, false
}

// minuteSeries returns the 1-minute source series backing aggregation.
func (s *Store) minuteSeries(a, quote asset.Asset) (*asset.BarSeries, bool) {
	return s.nativeSeries(a, quote, asset.OneMinute)
}

// GetHistoricalPrices returns up to length bars ending at-or-before
// now+timeshift, at the requested timestep, in chronological order. Returns
// ok=false (not an error) per §4.2's failure semantics when no data exists
// in range or no bar lies at-or-before the cutoff. When fewer than length
// bars are available, the shorter history is returned with ok=true.
func (s *Store) GetHistoricalPrices(a, quote asset.Asset, length int, ts asset.Timestep, now int64, timeshiftSeconds int64) (*asset.BarSeries, bool) {
	s.calls++
	if s.calls%TrimFrequencyBars == 0 {
		s.Trim(now)
	}

	cutoff := now + timeshiftSeconds

	series, ok := s.resolveSeries(a, quote, ts, cutoff)
	if !ok || series == nil || len(series.Bars) == 0 {
		logger.Debugf("barstore: no data for %s at %s quote=%s", a, ts, quote)
		return nil, false
	}

	// Never return a bar with ts > now (look-ahead prevention): clamp the
	// window to the last bar at-or-before cutoff.
	endIdx := series.indexAtOrBefore(cutoff)
	if endIdx < 0 {
		return nil, false
	}
	startIdx := endIdx - length + 1
	if startIdx < 0 {
		startIdx = 0
	}
	out := append([]asset.Bar(nil), series.Bars[startIdx:endIdx+1]...)
	if len(out) == 0 {
		return nil, false
	}
	return &asset.BarSeries{Asset: a, Quote: quote, Timestep: ts, Bars: out}, true
}

// resolveSeries returns the series to read from for (a, quote, ts): the
// native series if one was seeded at that exact timestep, otherwise an
// aggregated series derived from the minute source (built/cached on demand).
func (s *Store) resolveSeries(a, quote asset.Asset, ts asset.Timestep, cutoff int64) (*asset.BarSeries, bool) {
	if native, ok := s.nativeSeries(a, quote, ts); ok {
		return native, true
	}
	if ts == asset.OneMinute {
		return nil, false
	}
	return s.aggregate(a, quote, ts, cutoff)
}

// aggregate builds (or returns the cached) aggregated series for
// (a, quote, targetTimestep), derived from the minute source.
func (s *Store) aggregate(a, quote asset.Asset, target asset.Timestep, cutoff int64) (*asset.BarSeries, bool) {
	k := key{a, quote, target}
	minute, ok := s.minuteSeries(a, quote)
	if !ok || len(minute.Bars) == 0 {
		return nil, false
	}

	if e, cached := s.agg[k]; cached {
		last, hasLast := e.series.Last()
		minuteLast, _ := minute.Last()
		if hasLast && last.Ts >= minuteLast.Ts {
			s.touchAgg(k)
			return e.series, true
		}
		// Stale relative to newer minute data; rebuild.
	}

	bucketSeconds := target.Duration().Seconds()
	if bucketSeconds <= 0 {
		return nil, false
	}
	var out []asset.Bar
	var cur *asset.Bar
	var curBucket int64 = -1
	for _, b := range minute.Bars {
		bucket := (b.Ts / int64(bucketSeconds)) * int64(bucketSeconds)
		if bucket != curBucket {
			if cur != nil {
				out = append(out, *cur)
			}
			nb := asset.Bar{Ts: bucket, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume, Missing: b.Missing}
			cur = &nb
			curBucket = bucket
		} else {
			if b.High.GreaterThan(cur.High) {
				cur.High = b.High
			}
			if b.Low.LessThan(cur.Low) {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume = cur.Volume.Add(b.Volume)
			cur.Missing = cur.Missing && b.Missing
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}

	series := &asset.BarSeries{Asset: a, Quote: quote, Timestep: target, Bars: out}
	if e, exists := s.agg[k]; exists {
		e.series = series
		s.lruAgg.MoveToFront(e.elem)
	} else {
		elem := s.lruAgg.PushFront(k)
		s.agg[k] = &entry{series: series, elem: elem}
	}
	return series, true
}

// GetLastPrice returns the open of the current bar if a minute bar exists at
// exactly now, else the close of the most recent bar strictly before now.
// Trade-based only: never falls back to a quote mid, and returns ok=false if
// the resolved close is unset/zero-valued-but-absent.
func (s *Store) GetLastPrice(a, quote asset.Asset, now int64) (decimal.Decimal, bool) {
	series, ok := s.nativeSeries(a, quote, asset.OneMinute)
	if !ok {
		// Fall back to daily source if no minute data was seeded.
		series, ok = s.nativeSeries(a, quote, asset.OneDay)
		if !ok {
			return decimal.Decimal{}, false
		}
	}
	if i := series.indexAt(now); i >= 0 {
		return series.Bars[i].Open, true
	}
	i := series.indexAtOrBefore(now - 1)
	if i < 0 {
		return decimal.Decimal{}, false
	}
	close := series.Bars[i].Close
	if close.IsZero() && series.Bars[i].Missing {
		// Missing bars forward-fill OHLC from prior close already, so a
		// zero here means the series itself has no real close yet (e.g.
		// very first bar was missing) — treat as unresolved.
		return decimal.Decimal{}, false
	}
	return close, true
}

// GetQuote returns the bar at-or-before now, carrying bid/ask if present.
func (s *Store) GetQuote(a, quote asset.Asset, now int64) (asset.Bar, bool) {
	series, ok := s.nativeSeries(a, quote, asset.OneMinute)
	if !ok {
		return asset.Bar{}, false
	}
	i := series.indexAtOrBefore(now)
	if i < 0 {
		return asset.Bar{}, false
	}
	return series.Bars[i], true
}

// Trim enforces the sliding window on every native source series, then
// enforces the memory cap in two tiers: aggregated cache first, then source
// series, per §4.2.
func (s *Store) Trim(now int64) {
	for k, e := range s.source {
		windowStart := now - int64(k.t.Duration().Seconds())*HistoryWindowBars
		e.series.Bars = trimBefore(e.series.Bars, windowStart)
	}
	s.enforceMemoryCap()
}

func trimBefore(bars []asset.Bar, cutoff int64) []asset.Bar {
	if len(bars) == 0 {
		return bars
	}
	lo, hi := 0, len(bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if bars[mid].Ts < cutoff {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return bars
	}
	return append([]asset.Bar(nil), bars[lo:]...)
}

func (s *Store) totalBytes() int64 {
	var total int64
	for _, e := range s.source {
		total += e.series.SizeBytes()
	}
	for _, e := range s.agg {
		total += e.series.SizeBytes()
	}
	return total
}

// enforceMemoryCap evicts oldest-unused aggregated entries first, then
// oldest-unused source entries, until under maxBytes.
func (s *Store) enforceMemoryCap() {
	for s.totalBytes() > s.maxBytes {
		if back := s.lruAgg.Back(); back != nil {
			k := back.Value.(key)
			delete(s.agg, k)
			s.lruAgg.Remove(back)
			logger.Debugf("barstore: evicted aggregated cache %v", k)
			continue
		}
		if back := s.lruSource.Back(); back != nil {
			k := back.Value.(key)
			delete(s.source, k)
			s.lruSource.Remove(back)
			logger.Debugf("barstore: evicted source series %v", k)
			continue
		}
		break
	}
}
