// Command quoteserver replays canned quote frames from a fixture file.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/quotesock"
	"github.com/Zereker/quotesock/internal/logging"
	"github.com/Zereker/quotesock/internal/metrics"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:10030", "listen address")
	fixturesFlag := flag.String("fixtures", "fixtures.yaml", "reply fixture file")
	levelFlag := flag.String("log-level", "info", "log level")
	metricsFlag := flag.String("metrics-addr", "", "serve Prometheus metrics on this address when set")
	shutdownFlag := flag.Duration("shutdown-timeout", 5*time.Second, "grace period for open connections")
	flag.Parse()

	zl := logging.New("quoteserver", *levelFlag, os.Stderr)
	logger := logging.Adapt(zl)

	fixtures, err := LoadFixtures(*fixturesFlag)
	if err != nil {
		zl.Fatal().Err(err).Str("path", *fixturesFlag).Msg("failed to load fixtures")
	}
	protocol, err := fixtures.Protocol.Build()
	if err != nil {
		zl.Fatal().Err(err).Msg("invalid fixture protocol")
	}

	addr, err := net.ResolveTCPAddr("tcp", *addrFlag)
	if err != nil {
		zl.Fatal().Err(err).Str("addr", *addrFlag).Msg("failed to resolve address")
	}

	server, err := quotesock.NewServer(addr, metrics.InstrumentHandler(fixtures.Handler()),
		quotesock.ServerLoggerOption(logger),
		quotesock.ServerProtocolOption(protocol),
		quotesock.ServerShutdownTimeoutOption(*shutdownFlag),
	)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to create server")
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		zl.Info().Msg("shutting down server...")
		cancel()
	}()

	if *metricsFlag != "" {
		go serveMetrics(ctx, *metricsFlag, logger)
	}

	zl.Info().
		Str("path", *fixturesFlag).
		Int("replies", len(fixtures.Replies)).
		Msg("fixtures loaded")
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, logger quotesock.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
