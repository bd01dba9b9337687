package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zereker/quotesock"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Quote.Addr != quotesock.DefaultAddr {
		t.Errorf("addr = %q", cfg.Quote.Addr)
	}
	if cfg.Quote.ReadTimeout.Duration != 30*time.Second {
		t.Errorf("read timeout = %v", cfg.Quote.ReadTimeout)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store driver = %q", cfg.Store.Driver)
	}
	if cfg.Ingest.Provider != "tushare" {
		t.Errorf("provider = %q", cfg.Ingest.Provider)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "app.yaml", `
quote:
  addr: 127.0.0.1:9000
  read_timeout: 5s
  protocol:
    header_length: 8
    delimiter: ":"
    version: info
    compressed_types: ["z"]
    framing: newline
log:
  level: debug
store:
  driver: postgres
  dsn: postgres://quotes@localhost/quotes
ingest:
  provider: tiingo
  tiingo:
    symbols: [AAPL, MSFT]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Quote.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q", cfg.Quote.Addr)
	}
	if cfg.Quote.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Quote.ReadTimeout)
	}
	if cfg.Quote.DialTimeout.Duration != 10*time.Second {
		t.Errorf("dial timeout default lost: %v", cfg.Quote.DialTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("store driver = %q", cfg.Store.Driver)
	}
	if len(cfg.Ingest.Tiingo.Symbols) != 2 {
		t.Errorf("symbols = %v", cfg.Ingest.Tiingo.Symbols)
	}
	if cfg.Ingest.Tushare.URL != "http://api.tushare.pro" {
		t.Errorf("tushare url default lost: %q", cfg.Ingest.Tushare.URL)
	}

	p, err := cfg.Quote.Protocol.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.HeaderLength != 8 || p.Framing != quotesock.FramingNewline || !p.IsCompressed("z") {
		t.Errorf("protocol = %+v", p)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "app.toml", `
[quote]
addr = "10.0.0.5:10030"
dial_timeout = "2s"

[store]
dsn = "/tmp/quotes.db"

[ingest.tushare]
token = "abc"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Quote.Addr != "10.0.0.5:10030" {
		t.Errorf("addr = %q", cfg.Quote.Addr)
	}
	if cfg.Quote.DialTimeout.Duration != 2*time.Second {
		t.Errorf("dial timeout = %v", cfg.Quote.DialTimeout)
	}
	if cfg.Store.DSN != "/tmp/quotes.db" || cfg.Store.Driver != "sqlite" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Ingest.Tushare.Token != "abc" {
		t.Errorf("token = %q", cfg.Ingest.Tushare.Token)
	}
	if cfg.Quote.Protocol.HeaderLength != quotesock.DefaultHeaderLength {
		t.Errorf("protocol default lost: %+v", cfg.Quote.Protocol)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "app.yaml", "quote:\n  addr: 127.0.0.1:9000\n")

	t.Setenv("QUOTE_ADDR", "127.0.0.1:9100")
	t.Setenv("TUSHARE_TOKEN", "from-env")
	t.Setenv("TRADE_DATE", "20260106")
	t.Setenv("STORE_DSN", "env.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Quote.Addr != "127.0.0.1:9100" {
		t.Errorf("addr = %q", cfg.Quote.Addr)
	}
	if cfg.Ingest.Tushare.Token != "from-env" {
		t.Errorf("token = %q", cfg.Ingest.Tushare.Token)
	}
	if cfg.Ingest.TradeDate != "20260106" {
		t.Errorf("trade date = %q", cfg.Ingest.TradeDate)
	}
	if cfg.Store.DSN != "env.db" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeFile(t, "bad.yaml", "quote:\n  read_timeout: soon\n")
	if _, err := Load(bad); err == nil {
		t.Error("expected error for a bad duration")
	}

	framing := writeFile(t, "framing.toml", "[quote.protocol]\nframing = \"crlf\"\n")
	if _, err := Load(framing); err == nil {
		t.Error("expected error for an unknown framing")
	}
}

func TestQuoteConfig_SessionOptions(t *testing.T) {
	cfg := Default()

	opts, err := cfg.Quote.SessionOptions(quotesock.DiscardLogger())
	if err != nil {
		t.Fatalf("SessionOptions failed: %v", err)
	}
	if len(opts) != 5 {
		t.Errorf("len(opts) = %d, want 5", len(opts))
	}

	cfg.Quote.Protocol.Delimiter = ""
	if _, err := cfg.Quote.SessionOptions(quotesock.DiscardLogger()); err == nil {
		t.Error("expected error for an empty delimiter")
	}
}
