package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tenderflow TenderflowConfig `yaml:"tenderflow"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Source     SourceConfig     `yaml:"source"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Currency   CurrencyConfig   `yaml:"currency"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type TenderflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	AlertBuffer int `yaml:"alert_buffer"`
}

type ScannerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	LookbackDays int           `yaml:"lookback_days"`
	PageLimit    int           `yaml:"page_limit"`
	PagesPerSec  float64       `yaml:"pages_per_sec"`
	Timeout      time.Duration `yaml:"timeout"`
}

type SourceConfig struct {
	TED TEDConfig `yaml:"ted"`
}

type TEDConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type PipelineConfig struct {
	MaxWorkers         int      `yaml:"max_workers"`
	ThresholdEUR       float64  `yaml:"threshold_eur"`
	PreferredLanguages []string `yaml:"preferred_languages"`
	MaxAlertLots       int      `yaml:"max_alert_lots"`
	TitleMaxLen        int      `yaml:"title_max_len"`
	MessageMaxLen      int      `yaml:"message_max_len"`
}

type CurrencyConfig struct {
	Live LiveRateConfig `yaml:"live"`
}

type LiveRateConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type NotifierConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool          `yaml:"enabled"`
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	ChatID    string        `yaml:"chat_id"`
	ParseMode string        `yaml:"parse_mode"`
	Timeout   time.Duration `yaml:"timeout"`
}

type EnrichmentConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DedupConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxKeys int           `yaml:"max_keys"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(resolveConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scanner.Interval <= 0 {
		cfg.Scanner.Interval = 10 * time.Minute
	}
	if cfg.Scanner.LookbackDays <= 0 {
		cfg.Scanner.LookbackDays = 1
	}
	if cfg.Scanner.PageLimit <= 0 {
		cfg.Scanner.PageLimit = 50
	}
	if cfg.Scanner.PagesPerSec <= 0 {
		// One page every 500ms keeps the search API rate limiter happy.
		cfg.Scanner.PagesPerSec = 2
	}
	if cfg.Scanner.Timeout <= 0 {
		cfg.Scanner.Timeout = 30 * time.Second
	}
	if cfg.Source.TED.URL == "" {
		cfg.Source.TED.URL = "https://api.ted.europa.eu"
	}
	if cfg.Pipeline.ThresholdEUR <= 0 {
		cfg.Pipeline.ThresholdEUR = 15_000_000
	}
	if cfg.Pipeline.MaxAlertLots <= 0 {
		cfg.Pipeline.MaxAlertLots = 3
	}
	if cfg.Pipeline.TitleMaxLen <= 0 {
		cfg.Pipeline.TitleMaxLen = 160
	}
	if cfg.Pipeline.MessageMaxLen <= 0 {
		// Telegram caps messages at 4096 characters; leave slack for markup.
		cfg.Pipeline.MessageMaxLen = 3800
	}
	if cfg.Notifier.Telegram.URL == "" {
		cfg.Notifier.Telegram.URL = "https://api.telegram.org"
	}
	if cfg.Notifier.Telegram.ParseMode == "" {
		cfg.Notifier.Telegram.ParseMode = "Markdown"
	}
	if cfg.Notifier.Telegram.Timeout <= 0 {
		cfg.Notifier.Telegram.Timeout = 10 * time.Second
	}
	if cfg.Dedup.TTL <= 0 {
		cfg.Dedup.TTL = 24 * time.Hour
	}
	if cfg.Dedup.MaxKeys <= 0 {
		cfg.Dedup.MaxKeys = 10000
	}
	if cfg.Storage.S3.FlushInterval <= 0 {
		cfg.Storage.S3.FlushInterval = 5 * time.Minute
	}
	if cfg.Storage.S3.Prefix == "" {
		cfg.Storage.S3.Prefix = "notices"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TED_API_KEY"); v != "" {
		cfg.Source.TED.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifier.Telegram.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifier.Telegram.ChatID = strings.TrimSpace(v)
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Tenderflow.Name == "" {
		return fmt.Errorf("tenderflow.name is required")
	}
	if cfg.Tenderflow.Version == "" {
		return fmt.Errorf("tenderflow.version is required")
	}
	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be positive")
	}
	if cfg.Channels.AlertBuffer <= 0 {
		return fmt.Errorf("channels.alert_buffer must be positive")
	}
	if cfg.Notifier.Telegram.Enabled {
		if cfg.Notifier.Telegram.Token == "" {
			return fmt.Errorf("notifier.telegram.token is required when telegram is enabled")
		}
		if cfg.Notifier.Telegram.ChatID == "" {
			return fmt.Errorf("notifier.telegram.chat_id is required when telegram is enabled")
		}
	}
	if cfg.Storage.S3.Enabled {
		cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when s3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when s3 is enabled")
		}
	}
	return nil
}
