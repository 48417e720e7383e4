package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"strategy_id":"strat1"}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sleeptime != defaultSleeptime {
		t.Fatalf("expected default sleeptime, got %q", cfg.Sleeptime)
	}
	if cfg.Market != defaultMarket {
		t.Fatalf("expected default market, got %q", cfg.Market)
	}
	if cfg.Budget != defaultBudget {
		t.Fatalf("expected default budget, got %v", cfg.Budget)
	}
	if cfg.MaxStorageBytes != defaultMaxStorageBytes {
		t.Fatalf("expected default max storage bytes, got %v", cfg.MaxStorageBytes)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	body := `{"strategy_id":"strat1","sleeptime":"5M","market":"US_FUTURES","budget":50000}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sleeptime != "5M" || cfg.Market != "US_FUTURES" || cfg.Budget != 50000 {
		t.Fatalf("expected explicit values preserved, got %+v", cfg)
	}
}

func TestEnvOverridesQuietLogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"strategy_id":"strat1"}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("BACKTESTING_QUIET_LOGS", "true")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.BacktestingQuietLogs {
		t.Fatalf("expected env override to set BacktestingQuietLogs")
	}
}

func TestParsedSleeptimeFallsBackOnInvalid(t *testing.T) {
	cfg := &Config{Sleeptime: "not-a-timestep"}
	ts := cfg.ParsedSleeptime()
	if ts.Duration() <= 0 {
		t.Fatalf("expected fallback timestep to have positive duration")
	}
}
