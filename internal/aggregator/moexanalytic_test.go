package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

var futoiColumns = []string{
	"sess_id", "seqnum", "tradedate", "tradetime", "ticker", "clgroup",
	"pos", "pos_long", "pos_short", "pos_long_num", "pos_short_num", "systime",
}

func futoiRowData(date, clock, group string, long, short, numLong, numShort float64) []any {
	return []any{1.0, 1.0, date, clock, "RIZ3", group, 0.0, long, short, numLong, numShort, date + " " + clock}
}

func newAnalyticTestServer(t *testing.T, rows [][]any, authHits, dataHits *int) (*httptest.Server, *MOEXAnalytic) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
		*authHits++
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("expected basic auth on authenticate")
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/iss/analyticalproducts/futoi/securities/RIZ3.json", func(w http.ResponseWriter, r *http.Request) {
		*dataHits++
		var payload futoiPayload
		payload.Futoi.Columns = futoiColumns
		payload.Futoi.Data = rows
		json.NewEncoder(w).Encode(payload)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	m := NewMOEXAnalytic("login", "password")
	m.baseURL = srv.URL
	m.authURL = srv.URL + "/authenticate"
	return srv, m
}

func TestMOEXAnalyticDownload(t *testing.T) {
	rows := [][]any{
		// Two legal-entity rows in the same hour bar, one retail row to filter out.
		futoiRowData("2023-10-02", "10:00:00", "YUR", 1000, 800, 10, 8),
		futoiRowData("2023-10-02", "10:30:00", "YUR", 2000, 1200, 20, 12),
		futoiRowData("2023-10-02", "10:15:00", "FIZ", 9999, 9999, 99, 99),
	}
	var authHits, dataHits int
	_, m := newAnalyticTestServer(t, rows, &authHits, &dataHits)
	m.now = func() time.Time { return time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC) }

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC)
	candles, err := m.Download(context.Background(), "RIZ3", start, end, model.SpanHour, model.Hints{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if authHits != 1 {
		t.Errorf("expected 1 authenticate call, got %d", authHits)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 resampled bar, got %d", len(candles))
	}
	c := candles[0]
	if c.Long != 1500 {
		t.Errorf("expected mean long 1500, got %v", c.Long)
	}
	if c.Short != -1000 {
		t.Errorf("expected negated mean short -1000, got %v", c.Short)
	}
	if c.NumberLong != 15 || c.NumberShort != 10 {
		t.Errorf("unexpected counts: %+v", c)
	}
	wantBar := time.Date(2023, 10, 2, 10, 0, 0, 0, moscow).Unix()
	if c.Datetime != wantBar {
		t.Errorf("expected bar at %d, got %d", wantBar, c.Datetime)
	}
}

func TestMOEXAnalyticRefusesRecentWindow(t *testing.T) {
	var authHits, dataHits int
	_, m := newAnalyticTestServer(t, nil, &authHits, &dataHits)
	now := time.Date(2023, 10, 2, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	candles, err := m.Download(context.Background(), "RIZ3", now.Add(-time.Hour), now.Add(-time.Minute), model.SpanMinute, model.Hints{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if candles != nil {
		t.Errorf("expected refusal (nil), got %d candles", len(candles))
	}
	if authHits != 0 || dataHits != 0 {
		t.Errorf("expected no upstream calls, got auth=%d data=%d", authHits, dataHits)
	}
}

func TestMOEXAnalyticPaginatesTwoDaysAtATime(t *testing.T) {
	var authHits, dataHits int
	_, m := newAnalyticTestServer(t, nil, &authHits, &dataHits)
	m.now = func() time.Time { return time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC) }

	start := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	if _, err := m.Download(context.Background(), "RIZ3", start, end, model.SpanDay, model.Hints{}); err != nil {
		t.Fatalf("download: %v", err)
	}
	// Four-day span: pages start at day 0 and day 2.
	if dataHits != 2 {
		t.Errorf("expected 2 paginated requests, got %d", dataHits)
	}
}

func TestResampleMinuteKeepsSlots(t *testing.T) {
	rows := []futoiRow{
		{ts: 600, long: 10, short: -5, numberLong: 1, numberShort: 1},
		{ts: 900, long: 20, short: -10, numberLong: 2, numberShort: 2},
	}
	candles := resample(rows, model.SpanMinute)
	if len(candles) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(candles))
	}
	if candles[0].Datetime != 600 || candles[1].Datetime != 900 {
		t.Errorf("unexpected bar timestamps: %d, %d", candles[0].Datetime, candles[1].Datetime)
	}
}
