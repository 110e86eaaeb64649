package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

const moexBaseURL = "https://iss.moex.com"

// moexPageSize is the ISS candle page size; pages are walked with the
// "start" cursor until a short page comes back.
const moexPageSize = 500

// MOEX downloads OHLCV candles from the MOEX ISS API.
type MOEX struct {
	client  *http.Client
	baseURL string
}

// NewMOEX creates the MOEX candle adapter.
func NewMOEX() *MOEX {
	return &MOEX{client: newHTTPClient(), baseURL: moexBaseURL}
}

// issCandles mirrors the "candles" block of an ISS JSON response.
type issCandles struct {
	Candles struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	} `json:"candles"`
}

// Download fetches candles for [start, end). The mean price is computed as
// (open+close)/2; timestamps are the bar begin time in Unix seconds.
func (m *MOEX) Download(ctx context.Context, symbol string, start, end time.Time, span model.TimeSpan, hints model.Hints) ([]model.Candle, error) {
	market := hints.Market
	if market == "" {
		market = model.DefaultMarket
	}
	engine := hints.Engine
	if engine == "" {
		engine = model.DefaultEngine
	}

	log.Printf("[moex] downloading %s %s [%s, %s)", symbol, span, start.Format(issDateLayout), end.Format(issDateLayout))

	byTS := make(map[int64]model.Candle)
	for cursor := 0; ; cursor += moexPageSize {
		page, err := m.fetchPage(ctx, symbol, market, engine, span, start, end, cursor)
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			byTS[c.Datetime] = c
		}
		if len(page) < moexPageSize {
			break
		}
	}

	candles := make([]model.Candle, 0, len(byTS))
	for _, c := range byTS {
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Datetime < candles[j].Datetime })
	return candles, nil
}

func (m *MOEX) fetchPage(ctx context.Context, symbol, market, engine string, span model.TimeSpan, start, end time.Time, cursor int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("interval", fmt.Sprintf("%d", span.MOEXCode()))
	q.Set("from", start.Format(issDateLayout))
	q.Set("till", end.Format(issDateLayout))
	q.Set("start", fmt.Sprintf("%d", cursor))

	reqURL := fmt.Sprintf("%s/iss/engines/%s/markets/%s/securities/%s/candles.json?%s",
		m.baseURL, engine, market, symbol, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEX, Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEX, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEX, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload issCandles
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &model.DecodeError{Aggregator: model.AggregatorMOEX, Err: err}
	}
	return decodeCandles(payload)
}

func decodeCandles(payload issCandles) ([]model.Candle, error) {
	idx := make(map[string]int, len(payload.Candles.Columns))
	for i, name := range payload.Candles.Columns {
		idx[name] = i
	}
	for _, required := range []string{"open", "close", "high", "low", "volume", "begin"} {
		if _, ok := idx[required]; !ok {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEX, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	candles := make([]model.Candle, 0, len(payload.Candles.Data))
	for _, row := range payload.Candles.Data {
		open, err1 := numAt(row, idx["open"])
		close_, err2 := numAt(row, idx["close"])
		high, err3 := numAt(row, idx["high"])
		low, err4 := numAt(row, idx["low"])
		volume, err5 := numAt(row, idx["volume"])
		begin, err6 := strAt(row, idx["begin"])
		if err := firstErr(err1, err2, err3, err4, err5, err6); err != nil {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEX, Err: err}
		}
		ts, err := time.ParseInLocation(issTimeLayout, begin, moscow)
		if err != nil {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEX, Err: err}
		}
		candles = append(candles, model.Candle{
			Datetime:  ts.Unix(),
			MeanPrice: (open + close_) / 2,
			Volume:    volume,
			High:      high,
			Low:       low,
		})
	}
	return candles, nil
}

func numAt(row []any, i int) (float64, error) {
	if i >= len(row) {
		return 0, fmt.Errorf("row too short for column %d", i)
	}
	switch v := row[i].(type) {
	case float64:
		return v, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("column %d: expected number, got %T", i, v)
	}
}

func strAt(row []any, i int) (string, error) {
	if i >= len(row) {
		return "", fmt.Errorf("row too short for column %d", i)
	}
	s, ok := row[i].(string)
	if !ok {
		return "", fmt.Errorf("column %d: expected string, got %T", i, row[i])
	}
	return s, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
