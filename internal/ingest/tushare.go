package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TushareProvider reads the "daily" API of Tushare Pro.
type TushareProvider struct {
	url    string
	token  string
	client *http.Client
}

// NewTushareProvider returns a provider posting to url with token.
// A non-positive timeout means 30s.
func NewTushareProvider(url, token string, timeout time.Duration) *TushareProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TushareProvider{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// Daily calls the "daily" API for tradeDate. A non-zero response code is
// returned as an error.
func (p *TushareProvider) Daily(ctx context.Context, tradeDate string) ([]DailyBar, error) {
	if p.token == "" {
		return nil, errors.New("tushare token is empty")
	}

	payload, err := json.Marshal(tushareRequest{
		APIName: "daily",
		Token:   p.token,
		Params:  map[string]string{"trade_date": tradeDate},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode tushare request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request tushare")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("tushare http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out tushareResponse
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode tushare response")
	}
	if out.Code != 0 {
		return nil, errors.Errorf("tushare error %d: %s", out.Code, out.Msg)
	}
	if out.Data == nil {
		return nil, nil
	}

	return tushareBars(out.Data.Fields, out.Data.Items)
}

// tushareBars maps column-oriented rows onto DailyBar by field name.
// Unknown columns are ignored.
func tushareBars(fields []string, items [][]any) ([]DailyBar, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f] = i
	}
	for _, required := range []string{"ts_code", "trade_date"} {
		if _, ok := index[required]; !ok {
			return nil, errors.Errorf("tushare response lacks %s", required)
		}
	}

	bars := make([]DailyBar, 0, len(items))
	for row, item := range items {
		if len(item) != len(fields) {
			return nil, errors.Errorf("row %d has %d values, want %d", row, len(item), len(fields))
		}

		var b DailyBar
		b.TSCode = fmt.Sprint(item[index["ts_code"]])
		b.TradeDate = fmt.Sprint(item[index["trade_date"]])

		for name, dst := range map[string]*decimal.NullDecimal{
			"open":      &b.Open,
			"high":      &b.High,
			"low":       &b.Low,
			"close":     &b.Close,
			"pre_close": &b.PreClose,
			"change":    &b.Change,
			"pct_chg":   &b.PctChg,
			"vol":       &b.Vol,
			"amount":    &b.Amount,
		} {
			i, ok := index[name]
			if !ok {
				continue
			}
			v, err := nullDecimal(item[i])
			if err != nil {
				return nil, errors.Wrapf(err, "row %d %s", row, name)
			}
			*dst = v
		}

		bars = append(bars, b)
	}

	return bars, nil
}

func nullDecimal(v any) (decimal.NullDecimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	case string:
		if n == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(n)), nil
	default:
		return decimal.NullDecimal{}, errors.Errorf("unexpected value %T", v)
	}
}
