package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Qolorerr/Athena/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "athena_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testNaming() model.TickerNaming {
	return model.NewTickerNaming("YNDX", model.AggregatorMOEX, model.SpanMinute)
}

func TestUpsertAndReadCandles(t *testing.T) {
	s := newTestStore(t)
	naming := testNaming()

	rows := []model.Candle{
		{Datetime: 300, MeanPrice: 2500, Volume: 10, High: 2510, Low: 2490},
		{Datetime: 120, MeanPrice: 2400, Volume: 20, High: 2410, Low: 2390},
		{Datetime: 240, MeanPrice: 2450, Volume: 30, High: 2460, Low: 2440},
	}
	if err := s.UpsertCandles(naming, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ReadCandles(naming, 0, 1000)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Datetime <= got[i-1].Datetime {
			t.Errorf("candles not strictly ascending: %d after %d", got[i].Datetime, got[i-1].Datetime)
		}
	}
	if got[0].Datetime != 120 || got[0].MeanPrice != 2400 {
		t.Errorf("unexpected first candle: %+v", got[0])
	}
}

func TestUpsertKeepsLaterWrite(t *testing.T) {
	s := newTestStore(t)
	naming := testNaming()

	first := []model.Candle{{Datetime: 60, MeanPrice: 100}}
	second := []model.Candle{{Datetime: 60, MeanPrice: 200}}
	if err := s.UpsertCandles(naming, first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	if err := s.UpsertCandles(naming, second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	got, err := s.ReadCandles(naming, 0, 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle after collision, got %d", len(got))
	}
	if got[0].MeanPrice != 200 {
		t.Errorf("expected later write to win, got mean=%v", got[0].MeanPrice)
	}
}

func TestReadCandlesWindowBounds(t *testing.T) {
	s := newTestStore(t)
	naming := testNaming()

	rows := []model.Candle{
		{Datetime: 60}, {Datetime: 120}, {Datetime: 180}, {Datetime: 240},
	}
	if err := s.UpsertCandles(naming, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ReadCandles(naming, 120, 180)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles in [120,180], got %d", len(got))
	}
	for _, c := range got {
		if c.Datetime < 120 || c.Datetime > 180 {
			t.Errorf("candle %d outside window", c.Datetime)
		}
	}
}

func TestReadCandlesUnknownTicker(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ReadCandles(testNaming(), 0, 1000)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing catalogue entry, got %d rows", len(got))
	}
}

func TestUpsertAnalyticColumns(t *testing.T) {
	s := newTestStore(t)
	naming := model.NewTickerNaming("RIZ3", model.AggregatorMOEXAnalytic, model.SpanHour)

	rows := []model.Candle{
		{Datetime: 3600, Long: 1000, Short: -900, NumberLong: 12, NumberShort: 9},
	}
	if err := s.UpsertCandles(naming, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ReadCandles(naming, 0, 7200)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(got))
	}
	if got[0].Long != 1000 || got[0].Short != -900 || got[0].NumberLong != 12 || got[0].NumberShort != 9 {
		t.Errorf("unexpected analytic candle: %+v", got[0])
	}
}

func TestAddNotificationIdempotent(t *testing.T) {
	s := newTestStore(t)

	n1, err := s.AddNotification(42, "compiled > 0", "#YNDX.mean[C]>0")
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	n2, err := s.AddNotification(42, "compiled > 0", "#YNDX.mean[C]>0")
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if n1.ID != n2.ID {
		t.Errorf("expected same id for identical add, got %d and %d", n1.ID, n2.ID)
	}

	all, err := s.GetAllNotifications()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single stored row, got %d", len(all))
	}
}

func TestGetNotificationsByChat(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddNotification(1, "a > 0", "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddNotification(2, "b > 0", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}

	forChat, err := s.GetNotifications(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(forChat) != 1 {
		t.Fatalf("expected 1 notification for chat 1, got %d", len(forChat))
	}
	for _, n := range forChat {
		if n.ChatID != 1 {
			t.Errorf("wrong chat id: %d", n.ChatID)
		}
	}
}

func TestRemoveNotification(t *testing.T) {
	s := newTestStore(t)

	n, err := s.AddNotification(7, "x > 0", "x")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RemoveNotification(n.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveNotification(n.ID); !errors.Is(err, model.ErrNonexistentNotification) {
		t.Errorf("expected ErrNonexistentNotification on second remove, got %v", err)
	}
}

func TestListTickers(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertCandles(testNaming(), []model.Candle{{Datetime: 60}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := s.ListTickers()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 catalogue entry, got %d", len(records))
	}
	r := records[0]
	if r.Name != "YNDX" || r.Aggregator != model.AggregatorMOEX || r.Span != model.SpanMinute {
		t.Errorf("unexpected record: %+v", r)
	}
}
