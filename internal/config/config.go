// Package config holds the JSON-tagged run configuration (§6), mirroring
// the teacher's engine.Config/EntryRule struct shape: plain exported fields
// with json tags, a Load that fills defaults the way the teacher's Run()
// fills cfg.OutputDir/cfg.Seed/cfg.Verbosity, and environment overrides
// loaded via godotenv so a local .env file can seed them before os.Getenv
// wins.
package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lumicore/backtest/internal/asset"
	"github.com/lumicore/backtest/internal/logger"
)

// FeeRow mirrors one side of §6's buy/sell_trading_fees table entry.
type FeeRow struct {
	Flat    *float64 `json:"flat,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

// Config is the full run configuration (§6), covering every configuration
// row the spec names.
type Config struct {
	StrategyID           string  `json:"strategy_id"`
	Sleeptime            string  `json:"sleeptime"` // e.g. "1M", "5M", "1D"
	Market               string  `json:"market"`     // calendar name, e.g. "NYSE"
	MinutesBeforeClosing int     `json:"minutes_before_closing"`
	BacktestingStart     string  `json:"backtesting_start"` // YYYY-MM-DD
	BacktestingEnd       string  `json:"backtesting_end"`
	Budget               float64 `json:"budget"`

	BuyTradingFees  FeeRow `json:"buy_trading_fees"`
	SellTradingFees FeeRow `json:"sell_trading_fees"`

	MaxStorageBytes int64 `json:"max_storage_bytes"`

	BacktestingQuietLogs bool `json:"backtesting_quiet_logs"`
	FuturesRollDays      int  `json:"futures_roll_days"`

	ReportDir string `json:"report_dir"`
}

// defaults mirror the teacher's Run() fallback values for unset fields.
const (
	defaultSleeptime            = "1M"
	defaultMarket                = "NYSE"
	defaultMinutesBeforeClosing  = 15
	defaultBudget                = 100000
	defaultMaxStorageBytes       = 1_000_000_000
	defaultFuturesRollDays       = 7
	defaultReportDir             = "./output"
)

// Load reads a JSON config file, fills teacher-style defaults for any field
// left unset, and applies environment overrides (.env loaded first via
// godotenv, then os.Getenv wins, matching the two-layer pattern the pack's
// AlejandroRuiz99-polybot and poorman-SynapseStrike repos use for
// credentials).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; local .env seeds process env if present

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sleeptime == "" {
		c.Sleeptime = defaultSleeptime
	}
	if c.Market == "" {
		c.Market = defaultMarket
	}
	if c.MinutesBeforeClosing == 0 {
		c.MinutesBeforeClosing = defaultMinutesBeforeClosing
	}
	if c.Budget == 0 {
		c.Budget = defaultBudget
	}
	if c.MaxStorageBytes == 0 {
		c.MaxStorageBytes = defaultMaxStorageBytes
	}
	if c.FuturesRollDays == 0 {
		c.FuturesRollDays = defaultFuturesRollDays
	}
	if c.ReportDir == "" {
		c.ReportDir = defaultReportDir
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BACKTESTING_QUIET_LOGS"); v != "" {
		if quiet, err := strconv.ParseBool(v); err == nil {
			c.BacktestingQuietLogs = quiet
		} else {
			logger.Errorf("config: invalid BACKTESTING_QUIET_LOGS value %q", v)
		}
	}
	if v := os.Getenv("LUMIBOT_FUTURES_ROLL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.FuturesRollDays = days
		} else {
			logger.Errorf("config: invalid LUMIBOT_FUTURES_ROLL_DAYS value %q", v)
		}
	}
}

// ParsedSleeptime parses Sleeptime into a Timestep, falling back to one
// minute if the configured value fails to parse.
func (c *Config) ParsedSleeptime() asset.Timestep {
	if ts, ok := asset.ParseTimestep(c.Sleeptime); ok {
		return ts
	}
	return asset.OneMinute
}
