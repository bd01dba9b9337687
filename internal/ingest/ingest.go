// Package ingest fetches daily equity bars from an upstream provider and hands
// them to a sink for upserting.
package ingest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Zereker/quotesock"
)

// TradeDateLayout is the provider-side trade date format.
const TradeDateLayout = "20060102"

// DailyBar is one row of the equity_daily table. Numeric columns are nullable;
// providers report missing values as null.
type DailyBar struct {
	TSCode    string
	TradeDate string
	Open      decimal.NullDecimal
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	Close     decimal.NullDecimal
	PreClose  decimal.NullDecimal
	Change    decimal.NullDecimal
	PctChg    decimal.NullDecimal
	Vol       decimal.NullDecimal
	Amount    decimal.NullDecimal
}

// Provider returns every daily bar of one trade date (YYYYMMDD).
type Provider interface {
	Daily(ctx context.Context, tradeDate string) ([]DailyBar, error)
}

// Sink stores bars, replacing rows with the same (ts_code, trade_date).
type Sink interface {
	UpsertDaily(ctx context.Context, bars []DailyBar) (int, error)
}

// Syncer runs one fetch-then-upsert pass.
type Syncer struct {
	provider Provider
	sink     Sink
	logger   quotesock.Logger
	now      func() time.Time
}

// NewSyncer returns a Syncer writing provider output to sink.
// A nil logger discards all output.
func NewSyncer(provider Provider, sink Sink, logger quotesock.Logger) *Syncer {
	if logger == nil {
		logger = quotesock.DiscardLogger()
	}
	return &Syncer{provider: provider, sink: sink, logger: logger, now: time.Now}
}

// Run fetches the bars of tradeDate and upserts them. An empty tradeDate means
// today. A provider returning no rows skips the write and reports 0.
func (s *Syncer) Run(ctx context.Context, tradeDate string) (int, error) {
	if tradeDate == "" {
		tradeDate = s.now().Format(TradeDateLayout)
	}
	if _, err := time.Parse(TradeDateLayout, tradeDate); err != nil {
		return 0, errors.Wrapf(err, "invalid trade date %q", tradeDate)
	}

	s.logger.Info("fetching daily bars", "trade_date", tradeDate)
	bars, err := s.provider.Daily(ctx, tradeDate)
	if err != nil {
		return 0, errors.Wrapf(err, "fetch daily bars for %s", tradeDate)
	}
	s.logger.Info("fetched daily bars", "trade_date", tradeDate, "rows", len(bars))

	if len(bars) == 0 {
		s.logger.Warn("no daily bars, skipping upsert", "trade_date", tradeDate)
		return 0, nil
	}

	n, err := s.sink.UpsertDaily(ctx, bars)
	if err != nil {
		return 0, errors.Wrap(err, "upsert daily bars")
	}
	s.logger.Info("upserted daily bars", "trade_date", tradeDate, "rows", n)

	return n, nil
}
