// Command quotectl talks to the quote server and syncs daily bars into the
// local store.
//
//	quotectl exchange [-config file] [-addr host:port] command...
//	quotectl sync-daily [-config file] [-date YYYYMMDD] [-provider tushare|tiingo]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/quotesock"
	"github.com/Zereker/quotesock/internal/config"
	"github.com/Zereker/quotesock/internal/ingest"
	"github.com/Zereker/quotesock/internal/logging"
	"github.com/Zereker/quotesock/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "quotectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing subcommand (supported: exchange, sync-daily)")
	}

	switch args[0] {
	case "exchange":
		return runExchange(ctx, args[1:], stdout, stderr)
	case "sync-daily":
		return runSyncDaily(ctx, args[1:], stdout, stderr)
	default:
		return errors.Errorf("unknown subcommand %q (supported: exchange, sync-daily)", args[0])
	}
}

type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (.yaml or .toml)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level override")
}

func (c *commonFlags) load(app string, stderr io.Writer) (*config.Config, quotesock.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	return cfg, logging.Adapt(logging.New(app, cfg.Log.Level, stderr)), nil
}

func runExchange(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "quote server address override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("exchange: missing command")
	}
	command := strings.Join(fs.Args(), " ")

	cfg, logger, err := common.load("quotectl", stderr)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Quote.Addr = *addr
	}

	opts, err := cfg.Quote.SessionOptions(logger)
	if err != nil {
		return err
	}

	if _, err := quotesock.Connect(ctx, cfg.Quote.Addr, opts...); err != nil {
		return err
	}
	defer quotesock.Disconnect()

	reply, err := quotesock.SendAndReceive(ctx, command)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(stdout, reply)
	return err
}

func runSyncDaily(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sync-daily", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	date := fs.String("date", "", "trade date YYYYMMDD (default today)")
	providerName := fs.String("provider", "", "provider override: tushare | tiingo")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := common.load("quotectl", stderr)
	if err != nil {
		return err
	}
	if *date != "" {
		cfg.Ingest.TradeDate = *date
	}
	if *providerName != "" {
		cfg.Ingest.Provider = *providerName
	}

	provider, err := newProvider(cfg.Ingest)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Ingest.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Ingest.Timeout.Duration)
		defer cancel()
	}

	start := time.Now()
	n, err := ingest.NewSyncer(provider, st, logger).Run(ctx, cfg.Ingest.TradeDate)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "synced %d rows in %s\n", n, time.Since(start).Round(time.Millisecond))
	return err
}

func newProvider(cfg config.IngestConfig) (ingest.Provider, error) {
	switch cfg.Provider {
	case "tushare":
		return ingest.NewTushareProvider(cfg.Tushare.URL, cfg.Tushare.Token, cfg.Timeout.Duration), nil
	case "tiingo":
		if len(cfg.Tiingo.Symbols) == 0 {
			return nil, errors.New("tiingo provider needs at least one symbol")
		}
		return ingest.NewTiingoProvider(cfg.Tiingo.Token, cfg.Tiingo.Symbols, cfg.Concurrency), nil
	default:
		return nil, errors.Errorf("unknown provider %q", cfg.Provider)
	}
}
