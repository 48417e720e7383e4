package datasource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lumicore/backtest/internal/asset"
)

type fakeStore struct {
	seeded []asset.Bar
}

func (f *fakeStore) Seed(a asset.Asset, quote asset.Asset, ts asset.Timestep, bars []asset.Bar) {
	f.seeded = bars
}

func TestSyntheticSourceGeneratesEquityBars(t *testing.T) {
	src := NewSyntheticSource(1, 100)
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	bars, err := src.GetBars(spy, usd, asset.OneDay, from, to)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(bars) == 0 {
		t.Fatalf("expected at least one bar")
	}
	for _, b := range bars {
		if b.High.LessThan(b.Low) {
			t.Fatalf("high < low: %+v", b)
		}
	}
}

func TestSyntheticSourceDeterministicForSameSeed(t *testing.T) {
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	a, _ := NewSyntheticSource(42, 100).GetBars(spy, usd, asset.OneDay, from, to)
	b, _ := NewSyntheticSource(42, 100).GetBars(spy, usd, asset.OneDay, from, to)
	if len(a) != len(b) {
		t.Fatalf("expected identical bar counts for same seed")
	}
	for i := range a {
		if !a[i].Close.Equal(b[i].Close) {
			t.Fatalf("expected identical close at %d, got %v vs %v", i, a[i].Close, b[i].Close)
		}
	}
}

func TestSyntheticSourceOptionBarsPriceFromBlackScholes(t *testing.T) {
	src := NewSyntheticSource(1, 100)
	call := asset.NewOption("SPY", "2024-06-21", 100, asset.Call)
	usd := asset.NewStock("USD")
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	bars, err := src.GetBars(call, usd, asset.OneDay, from, to)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	for _, b := range bars {
		if !b.HasQuote() {
			t.Fatalf("expected option bars to carry bid/ask: %+v", b)
		}
	}
}

func TestCSVSourceLoadsAndFilters(t *testing.T) {
	dir := t.TempDir()
	content := "timestamp,open,high,low,close,volume\n" +
		"1704153600,100,101,99,100.5,1000\n" +
		"1704240000,100.5,102,100,101.5,1100\n" +
		"1704326400,101.5,103,101,102.5,1200\n"
	if err := os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src := NewCSVSource(dir, nil)
	aapl := asset.NewStock("AAPL")
	usd := asset.NewStock("USD")
	from := time.Unix(1704153600, 0).UTC()
	to := time.Unix(1704240000, 0).UTC()

	bars, err := src.GetBars(aapl, usd, asset.OneDay, from, to)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars within range, got %d", len(bars))
	}
}

func TestCSVSourceFallsBackToSecondary(t *testing.T) {
	dir := t.TempDir()
	fallback := NewSyntheticSource(1, 100)
	src := NewCSVSource(dir, fallback)

	msft := asset.NewStock("MSFT")
	usd := asset.NewStock("USD")
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	if _, err := src.GetBars(msft, usd, asset.OneDay, from, to); err == nil {
		t.Fatalf("expected primary CSV source to error on a missing file")
	}
	bars, err := src.Secondary().GetBars(msft, usd, asset.OneDay, from, to)
	if err != nil || len(bars) == 0 {
		t.Fatalf("expected secondary synthetic source to produce bars, err=%v len=%d", err, len(bars))
	}
}

func TestLoadIntoSeedsStore(t *testing.T) {
	store := &fakeStore{}
	src := NewSyntheticSource(1, 100)
	spy := asset.NewStock("SPY")
	usd := asset.NewStock("USD")
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	if err := LoadInto(store, src, spy, usd, asset.OneDay, from, to); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	if len(store.seeded) == 0 {
		t.Fatalf("expected store to be seeded")
	}
}
