package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"gridsim/logger"
)

// global config instance
var global *Config

// Config holds process-wide settings. Per-session trading parameters live in
// engine.GridConfig; only service-level knobs belong here.
type Config struct {
	APIServerPort int    `yaml:"api_server_port"`
	JWTSecret     string `yaml:"jwt_secret"`
	DBPath        string `yaml:"db_path"`

	// Engine defaults
	HistoryRetention   int     `yaml:"history_retention"`    // closed orders / fills kept per session
	FeeThresholdUSD    float64 `yaml:"fee_threshold_usd"`    // lifetime profit free allowance
	FeeRate            float64 `yaml:"fee_rate"`             // fee rate on taxable profit
	AutorunIntervalSec int     `yaml:"autorun_interval_sec"` // default autorun tick interval

	// Price source
	BinanceBaseURL string `yaml:"binance_base_url"` // override for tests/mirrors

	// Alerts
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`

	Log logger.Config `yaml:"log"`
}

// Defaults returns a config with all defaults applied
func Defaults() *Config {
	return &Config{
		APIServerPort:      8080,
		JWTSecret:          "default-jwt-secret-change-in-production",
		DBPath:             "data/gridsim.db",
		HistoryRetention:   500,
		FeeThresholdUSD:    1000,
		FeeRate:            0.03,
		AutorunIntervalSec: 15,
		Log:                logger.Config{Level: "info"},
	}
}

// Load reads the optional YAML config file, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg.applyEnv()
	global = cfg
	return cfg, nil
}

// Get returns the global config, initializing defaults if Load was never called
func Get() *Config {
	if global == nil {
		cfg := Defaults()
		cfg.applyEnv()
		global = cfg
	}
	return global
}

func (c *Config) applyEnv() {
	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.APIServerPort = port
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("HISTORY_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HistoryRetention = n
		}
	}
	if v := os.Getenv("FEE_THRESHOLD_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.FeeThresholdUSD = f
		}
	}
	if v := os.Getenv("FEE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.FeeRate = f
		}
	}
	if v := os.Getenv("AUTORUN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AutorunIntervalSec = n
		}
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.BinanceBaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.TelegramChatID = id
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}
