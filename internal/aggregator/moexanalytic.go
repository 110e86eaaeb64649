package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

const moexPassportURL = "https://passport.moex.com/authenticate"

// publishDelay: futoi figures appear upstream with a lag, so windows ending
// closer than this to "now" yield no data.
const publishDelay = 5 * time.Minute

// futoi rows carry 5-minute slots; raw timestamps are snapped to this grid
// before resampling.
const futoiSlotSeconds = 300

// MOEXAnalytic downloads futures open-interest analytics (futoi) from MOEX.
// Rows are filtered to the legal-entity client group, short positions are
// negated, and the 5-minute slots are resampled to the requested bar width
// taking the mean per bar.
type MOEXAnalytic struct {
	client   *http.Client
	baseURL  string
	authURL  string
	login    string
	password string

	now func() time.Time
}

// NewMOEXAnalytic creates the futoi adapter. The passport session cookie is
// obtained on demand at each download.
func NewMOEXAnalytic(login, password string) *MOEXAnalytic {
	jar, _ := cookiejar.New(nil)
	client := newHTTPClient()
	client.Jar = jar
	return &MOEXAnalytic{
		client:   client,
		baseURL:  moexBaseURL,
		authURL:  moexPassportURL,
		login:    login,
		password: password,
		now:      time.Now,
	}
}

type futoiPayload struct {
	Futoi struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	} `json:"futoi"`
}

type futoiRow struct {
	ts          int64
	long        float64
	short       float64
	numberLong  float64
	numberShort float64
}

// Download fetches futoi rows for [start, end), paginating the upstream two
// days at a time. Windows ending less than five minutes ago are refused with
// an empty result.
func (m *MOEXAnalytic) Download(ctx context.Context, symbol string, start, end time.Time, span model.TimeSpan, hints model.Hints) ([]model.Candle, error) {
	if m.now().Sub(end) < publishDelay {
		log.Printf("[moex-analytic] window for %s ends too close to now, refusing", symbol)
		return nil, nil
	}

	if err := m.authenticate(ctx); err != nil {
		return nil, err
	}

	log.Printf("[moex-analytic] downloading %s [%s, %s)", symbol, start.Format(issDateLayout), end.Format(issDateLayout))

	var rows []futoiRow
	for day := start; !day.After(end); day = day.AddDate(0, 0, 2) {
		page, err := m.fetchTwoDays(ctx, symbol, day)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
	}

	return resample(rows, span), nil
}

// authenticate obtains the passport session cookie via basic auth.
func (m *MOEXAnalytic) authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.authURL, nil)
	if err != nil {
		return &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
	}
	req.SetBasicAuth(m.login, m.password)
	resp, err := m.client.Do(req)
	if err != nil {
		return &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: fmt.Errorf("authenticate: %w", err)}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: fmt.Errorf("authenticate: unexpected status %d", resp.StatusCode)}
	}
	return nil
}

func (m *MOEXAnalytic) fetchTwoDays(ctx context.Context, symbol string, from time.Time) ([]futoiRow, error) {
	reqURL := fmt.Sprintf("%s/iss/analyticalproducts/futoi/securities/%s.json?from=%s&till=%s",
		m.baseURL, symbol, from.Format(issDateLayout), from.AddDate(0, 0, 1).Format(issDateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &model.FetchError{Aggregator: model.AggregatorMOEXAnalytic, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload futoiPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &model.DecodeError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
	}
	return decodeFutoi(payload)
}

func decodeFutoi(payload futoiPayload) ([]futoiRow, error) {
	idx := make(map[string]int, len(payload.Futoi.Columns))
	for i, name := range payload.Futoi.Columns {
		idx[name] = i
	}
	for _, required := range []string{"tradedate", "tradetime", "clgroup", "pos_long", "pos_short", "pos_long_num", "pos_short_num"} {
		if _, ok := idx[required]; !ok {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEXAnalytic, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	var rows []futoiRow
	for _, raw := range payload.Futoi.Data {
		group, err := strAt(raw, idx["clgroup"])
		if err != nil {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
		}
		if group != "YUR" {
			continue
		}

		date, err1 := strAt(raw, idx["tradedate"])
		clock, err2 := strAt(raw, idx["tradetime"])
		long, err3 := numAt(raw, idx["pos_long"])
		short, err4 := numAt(raw, idx["pos_short"])
		numLong, err5 := numAt(raw, idx["pos_long_num"])
		numShort, err6 := numAt(raw, idx["pos_short_num"])
		if err := firstErr(err1, err2, err3, err4, err5, err6); err != nil {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
		}

		ts, err := time.ParseInLocation(issTimeLayout, date+" "+clock, moscow)
		if err != nil {
			return nil, &model.DecodeError{Aggregator: model.AggregatorMOEXAnalytic, Err: err}
		}
		slot := int64(math.Round(float64(ts.Unix())/futoiSlotSeconds)) * futoiSlotSeconds

		rows = append(rows, futoiRow{
			ts:          slot,
			long:        long,
			short:       -short,
			numberLong:  numLong,
			numberShort: numShort,
		})
	}
	return rows, nil
}

// resample buckets futoi rows to the requested bar width, taking the mean of
// each field per bar. Empty buckets produce no output row.
func resample(rows []futoiRow, span model.TimeSpan) []model.Candle {
	if len(rows) == 0 {
		return nil
	}
	barSec := int64(span.Width() / time.Second)

	type acc struct {
		sum   futoiRow
		count float64
	}
	buckets := make(map[int64]*acc)
	for _, r := range rows {
		bucket := r.ts - r.ts%barSec
		a := buckets[bucket]
		if a == nil {
			a = &acc{}
			buckets[bucket] = a
		}
		a.sum.long += r.long
		a.sum.short += r.short
		a.sum.numberLong += r.numberLong
		a.sum.numberShort += r.numberShort
		a.count++
	}

	candles := make([]model.Candle, 0, len(buckets))
	for bucket, a := range buckets {
		candles = append(candles, model.Candle{
			Datetime:    bucket,
			Long:        a.sum.long / a.count,
			Short:       a.sum.short / a.count,
			NumberLong:  a.sum.numberLong / a.count,
			NumberShort: a.sum.numberShort / a.count,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Datetime < candles[j].Datetime })
	return candles
}
