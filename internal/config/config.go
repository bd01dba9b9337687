// Package config loads the settings shared by quotectl and quoteserver.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/quotesock"
)

// Config is the full settings tree of quotectl and quoteserver.
type Config struct {
	Quote  QuoteConfig  `yaml:"quote" toml:"quote"`
	Log    LogConfig    `yaml:"log" toml:"log"`
	Store  StoreConfig  `yaml:"store" toml:"store"`
	Ingest IngestConfig `yaml:"ingest" toml:"ingest"`
}

// QuoteConfig describes how to reach and talk to the quote server.
type QuoteConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	DialTimeout     Duration `yaml:"dial_timeout" toml:"dial_timeout"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout"`
	MaxMessageBytes int      `yaml:"max_message_bytes" toml:"max_message_bytes"`
	Protocol        Protocol `yaml:"protocol" toml:"protocol"`
}

// Protocol mirrors quotesock.Protocol with config-friendly field types.
type Protocol struct {
	HeaderLength    int      `yaml:"header_length" toml:"header_length"`
	Delimiter       string   `yaml:"delimiter" toml:"delimiter"`
	Version         string   `yaml:"version" toml:"version"`
	CompressedTypes []string `yaml:"compressed_types" toml:"compressed_types"`
	Framing         string   `yaml:"framing" toml:"framing"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// StoreConfig selects the database driver ("sqlite" or "postgres") and DSN.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// IngestConfig configures the daily bar sync.
type IngestConfig struct {
	Provider    string   `yaml:"provider" toml:"provider"`
	TradeDate   string   `yaml:"trade_date" toml:"trade_date"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	Tushare     Tushare  `yaml:"tushare" toml:"tushare"`
	Tiingo      Tiingo   `yaml:"tiingo" toml:"tiingo"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency"`
}

// Tushare holds the Tushare Pro endpoint and token.
type Tushare struct {
	URL   string `yaml:"url" toml:"url"`
	Token string `yaml:"token" toml:"token"`
}

// Tiingo holds the Tiingo token and the symbols to fetch.
type Tiingo struct {
	Token   string   `yaml:"token" toml:"token"`
	Symbols []string `yaml:"symbols" toml:"symbols"`
}

// Duration is a time.Duration written as a Go duration string ("1m30s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText formats d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file or env value is set.
func Default() Config {
	p := quotesock.DefaultProtocol()
	return Config{
		Quote: QuoteConfig{
			Addr:            quotesock.DefaultAddr,
			DialTimeout:     Duration{10 * time.Second},
			ReadTimeout:     Duration{30 * time.Second},
			MaxMessageBytes: 8 * 1024 * 1024,
			Protocol: Protocol{
				HeaderLength:    p.HeaderLength,
				Delimiter:       p.Delimiter,
				Version:         p.Version,
				CompressedTypes: p.CompressedTypes,
				Framing:         "sentinel",
			},
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/quotes.db",
		},
		Ingest: IngestConfig{
			Provider:    "tushare",
			Timeout:     Duration{30 * time.Second},
			Tushare:     Tushare{URL: "http://api.tushare.pro"},
			Concurrency: 4,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return nil, errors.Wrap(err, "parse toml config")
			}
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(err, "parse yaml config")
			}
		}
	}

	applyEnvOverrides(&cfg)

	if _, err := cfg.Quote.Protocol.Build(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTE_ADDR"); v != "" {
		cfg.Quote.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("TRADE_DATE"); v != "" {
		cfg.Ingest.TradeDate = v
	}
	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.Ingest.Tushare.Token = v
	}
	if v := os.Getenv("TIINGO_TOKEN"); v != "" {
		cfg.Ingest.Tiingo.Token = v
	}
}

// Build converts p into a validated quotesock.Protocol.
func (p Protocol) Build() (quotesock.Protocol, error) {
	out := quotesock.Protocol{
		HeaderLength:    p.HeaderLength,
		Delimiter:       p.Delimiter,
		Version:         p.Version,
		CompressedTypes: p.CompressedTypes,
	}

	switch strings.ToLower(strings.TrimSpace(p.Framing)) {
	case "", "sentinel":
		out.Framing = quotesock.FramingSentinel
	case "newline":
		out.Framing = quotesock.FramingNewline
	default:
		return quotesock.Protocol{}, errors.Errorf("unknown framing %q", p.Framing)
	}

	if err := out.Validate(); err != nil {
		return quotesock.Protocol{}, err
	}
	return out, nil
}

// SessionOptions returns the quotesock options described by c.
func (c QuoteConfig) SessionOptions(logger quotesock.Logger) ([]quotesock.Option, error) {
	p, err := c.Protocol.Build()
	if err != nil {
		return nil, err
	}
	return []quotesock.Option{
		quotesock.ProtocolOption(p),
		quotesock.DialTimeoutOption(c.DialTimeout.Duration),
		quotesock.ReadTimeoutOption(c.ReadTimeout.Duration),
		quotesock.MessageMaxSize(c.MaxMessageBytes),
		quotesock.LoggerOption(logger),
	}, nil
}
