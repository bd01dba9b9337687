package ingest

import (
	"context"
	"time"

	quote "github.com/markcheno/go-quote"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TiingoProvider reads daily bars for a fixed symbol list from Tiingo.
type TiingoProvider struct {
	token       string
	symbols     []string
	concurrency int

	fetch func(symbol, startDate, endDate string, period quote.Period, token string) (quote.Quote, error)
}

// NewTiingoProvider returns a provider fetching symbols with at most
// concurrency requests in flight. A non-positive concurrency means 4.
func NewTiingoProvider(token string, symbols []string, concurrency int) *TiingoProvider {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &TiingoProvider{
		token:       token,
		symbols:     symbols,
		concurrency: concurrency,
		fetch:       quote.NewQuoteFromTiingo,
	}
}

// Daily fetches every configured symbol and keeps the bars of tradeDate.
// Any failed symbol fails the whole call.
func (p *TiingoProvider) Daily(ctx context.Context, tradeDate string) ([]DailyBar, error) {
	if p.token == "" {
		return nil, errors.New("tiingo token is empty")
	}
	day, err := time.Parse(TradeDateLayout, tradeDate)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid trade date %q", tradeDate)
	}
	// A week of history gives the previous close.
	start := day.AddDate(0, 0, -7).Format("2006-01-02")
	end := day.Format("2006-01-02")

	results := make([][]DailyBar, len(p.symbols))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)

	for i, symbol := range p.symbols {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			q, err := p.fetch(symbol, start, end, quote.Daily, p.token)
			if err != nil {
				return errors.Wrapf(err, "tiingo %s", symbol)
			}
			results[i] = quoteBars(symbol, q, tradeDate)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var bars []DailyBar
	for _, r := range results {
		bars = append(bars, r...)
	}
	return bars, nil
}

// quoteBars keeps the bars of q that fall on tradeDate.
func quoteBars(symbol string, q quote.Quote, tradeDate string) []DailyBar {
	var bars []DailyBar
	for i, d := range q.Date {
		if d.Format(TradeDateLayout) != tradeDate {
			continue
		}
		b := DailyBar{
			TSCode:    symbol,
			TradeDate: tradeDate,
			Open:      floatAt(q.Open, i),
			High:      floatAt(q.High, i),
			Low:       floatAt(q.Low, i),
			Close:     floatAt(q.Close, i),
			Vol:       floatAt(q.Volume, i),
		}
		if i > 0 && b.Close.Valid {
			prev := floatAt(q.Close, i-1)
			if prev.Valid && !prev.Decimal.IsZero() {
				b.PreClose = prev
				b.Change = decimal.NewNullDecimal(b.Close.Decimal.Sub(prev.Decimal))
				b.PctChg = decimal.NewNullDecimal(b.Change.Decimal.Div(prev.Decimal).Mul(decimal.NewFromInt(100)).Round(4))
			}
		}
		bars = append(bars, b)
	}
	return bars
}

func floatAt(values []float64, i int) decimal.NullDecimal {
	if i >= len(values) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(values[i]))
}
