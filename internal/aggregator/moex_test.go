package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

func issCandleResponse(rows [][]any) issCandles {
	var payload issCandles
	payload.Candles.Columns = []string{"open", "close", "high", "low", "value", "volume", "begin", "end"}
	payload.Candles.Data = rows
	return payload
}

func TestMOEXDownload(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("interval") != "1" {
			t.Errorf("expected interval=1, got %s", r.URL.Query().Get("interval"))
		}
		payload := issCandleResponse([][]any{
			{100.0, 110.0, 112.0, 98.0, 0.0, 5000.0, "2023-10-02 10:00:00", "2023-10-02 10:01:00"},
			{110.0, 120.0, 122.0, 108.0, 0.0, 6000.0, "2023-10-02 10:01:00", "2023-10-02 10:02:00"},
		})
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	m := NewMOEX()
	m.baseURL = srv.URL

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	candles, err := m.Download(context.Background(), "YNDX", start, start.AddDate(0, 0, 1), model.SpanMinute, model.Hints{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if gotPath != "/iss/engines/stock/markets/shares/securities/YNDX/candles.json" {
		t.Errorf("unexpected request path %s", gotPath)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].MeanPrice != 105 {
		t.Errorf("expected mean (100+110)/2=105, got %v", candles[0].MeanPrice)
	}
	if candles[0].Volume != 5000 || candles[0].High != 112 || candles[0].Low != 98 {
		t.Errorf("unexpected first candle: %+v", candles[0])
	}
	want := time.Date(2023, 10, 2, 10, 0, 0, 0, moscow).Unix()
	if candles[0].Datetime != want {
		t.Errorf("expected datetime %d, got %d", want, candles[0].Datetime)
	}
	if candles[1].Datetime <= candles[0].Datetime {
		t.Error("candles not ascending")
	}
}

func TestMOEXDownloadHints(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(issCandleResponse(nil))
	}))
	defer srv.Close()

	m := NewMOEX()
	m.baseURL = srv.URL

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	hints := model.Hints{Market: "forts", Engine: "futures"}
	if _, err := m.Download(context.Background(), "RIZ3", start, start.AddDate(0, 0, 1), model.SpanHour, hints); err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotPath != "/iss/engines/futures/markets/forts/securities/RIZ3/candles.json" {
		t.Errorf("hints not applied, path %s", gotPath)
	}
}

func TestMOEXDownloadEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issCandleResponse(nil))
	}))
	defer srv.Close()

	m := NewMOEX()
	m.baseURL = srv.URL

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	candles, err := m.Download(context.Background(), "YNDX", start, start.AddDate(0, 0, 1), model.SpanMinute, model.Hints{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(candles) != 0 {
		t.Errorf("expected empty result, got %d candles", len(candles))
	}
}

func TestMOEXDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewMOEX()
	m.baseURL = srv.URL

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	_, err := m.Download(context.Background(), "YNDX", start, start.AddDate(0, 0, 1), model.SpanMinute, model.Hints{})
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Aggregator != model.AggregatorMOEX {
		t.Errorf("wrong aggregator in error: %s", fetchErr.Aggregator)
	}
}

func TestMOEXDownloadMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candles": {"columns": ["open"], "data": []}}`))
	}))
	defer srv.Close()

	m := NewMOEX()
	m.baseURL = srv.URL

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	_, err := m.Download(context.Background(), "YNDX", start, start.AddDate(0, 0, 1), model.SpanMinute, model.Hints{})
	var decodeErr *model.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
