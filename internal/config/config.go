package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ohlc-tools/history-repair/internal/timeframe"
)

type ExchangeConfig struct {
	BaseURL           string        `yaml:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

const (
	_baseURLDefault           = "https://api.binance.com"
	_requestsPerMinuteDefault = 1200
	_requestTimeoutDefault    = 30 * time.Second
)

func (c *ExchangeConfig) Setup() error {
	if c.BaseURL == "" {
		c.BaseURL = _baseURLDefault
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("%w: invalid exchange base url", err)
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = _requestsPerMinuteDefault
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = _requestTimeoutDefault
	}
	return nil
}

type RepairConfig struct {
	DataDir       string         `yaml:"data_dir"`
	ReportsDir    string         `yaml:"reports_dir"`
	Symbols       []string       `yaml:"symbols"`
	Timeframes    []string       `yaml:"timeframes"`
	LookbackYears int            `yaml:"lookback_years"`
	Concurrency   int            `yaml:"concurrency"`
	ProgressPort  string         `yaml:"progress_port"` // empty disables the progress endpoint
	Exchange      ExchangeConfig `yaml:"exchange"`
}

const (
	_dataDirDefault       = "./data/historical"
	_reportsDirDefault    = "./reports"
	_lookbackYearsDefault = 5
	_concurrencyDefault   = 4
)

func (c *RepairConfig) ValidateAndSetup() error {
	if c.DataDir == "" {
		c.DataDir = _dataDirDefault
	}
	if _, err := os.Stat(c.DataDir); err != nil {
		return fmt.Errorf("%w: data dir is not accessible", err)
	}
	if c.ReportsDir == "" {
		c.ReportsDir = _reportsDirDefault
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("empty symbols")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("empty timeframes")
	}
	for _, tf := range c.Timeframes {
		if !timeframe.Supported(tf) {
			return fmt.Errorf("%w: %s", timeframe.ErrUnsupportedTimeframe, tf)
		}
	}

	if c.LookbackYears <= 0 {
		c.LookbackYears = _lookbackYearsDefault
	}
	if c.Concurrency <= 0 {
		c.Concurrency = _concurrencyDefault
	}

	return c.Exchange.Setup()
}

func LoadRepairConfig(filename string) (RepairConfig, error) {
	var cfg RepairConfig
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
