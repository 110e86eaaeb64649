package condition

import (
	"context"
	"errors"
	"testing"

	"github.com/Qolorerr/Athena/internal/model"
)

// stubKeeper serves canned candles per naming and records requested windows.
type stubKeeper struct {
	series  map[model.TickerNaming][]model.Candle
	windows [][2]int
	err     error
}

func (s *stubKeeper) GetTicker(ctx context.Context, naming model.TickerNaming, startBar, endBar int) ([]model.Candle, error) {
	s.windows = append(s.windows, [2]int{startBar, endBar})
	if s.err != nil {
		return nil, s.err
	}
	return s.series[naming], nil
}

func minuteNaming(symbol string) model.TickerNaming {
	return model.NewTickerNaming(symbol, model.AggregatorMOEX, model.SpanMinute)
}

func evalRule(t *testing.T, keeper *stubKeeper, rule string) (bool, error) {
	t.Helper()
	node, err := Compile(rule)
	if err != nil {
		t.Fatalf("compile %q: %v", rule, err)
	}
	return NewEvaluator(keeper).EvalBool(context.Background(), node)
}

func TestEvalSimpleComparison(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {{Datetime: 100, MeanPrice: 2500}},
	}}

	got, err := evalRule(t, keeper, "#YNDX.mean[C]>2000")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Error("expected true for 2500 > 2000")
	}
	if len(keeper.windows) != 1 || keeper.windows[0] != [2]int{-1, 0} {
		t.Errorf("expected one fetch with window [-1, 0], got %v", keeper.windows)
	}
}

func TestEvalReductions(t *testing.T) {
	series := []model.Candle{
		{Datetime: 60, MeanPrice: 10, Volume: 1, High: 30, Low: 5},
		{Datetime: 120, MeanPrice: 20, Volume: 2, High: 40, Low: 3},
		{Datetime: 180, MeanPrice: 30, Volume: 3, High: 50, Low: 4},
	}
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): series,
	}}

	cases := []struct {
		rule string
		want bool
	}{
		{"#YNDX.mean[3T].mean() == 20", true},
		{"#YNDX.mean[3T].sum() == 60", true},
		{"#YNDX.low[3T].min() == 3", true},
		{"#YNDX.high[3T].max() == 50", true},
		{"#YNDX.mean[3T] == 30", true}, // last value
		{"#YNDX.mean[2T].sum() == 50", true},
		{"#YNDX.mean[3T].mean() > 20", false},
	}
	for _, tc := range cases {
		got, err := evalRule(t, keeper, tc.rule)
		if err != nil {
			t.Errorf("%q: eval: %v", tc.rule, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %v, want %v", tc.rule, got, tc.want)
		}
	}
}

func TestEvalTailClipsLongSeries(t *testing.T) {
	// The keeper may return more bars than the window asks for; the
	// reduction must only see the trailing n.
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {
			{Datetime: 60, MeanPrice: 1000},
			{Datetime: 120, MeanPrice: 10},
			{Datetime: 180, MeanPrice: 20},
		},
	}}

	got, err := evalRule(t, keeper, "#YNDX.mean[2T].sum() == 30")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Error("expected tail(2) to exclude the first bar")
	}
}

func TestEvalLogicalOperators(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {{Datetime: 100, MeanPrice: 2500}},
	}}

	cases := []struct {
		rule string
		want bool
	}{
		{"#YNDX.mean[C]>2000 and #YNDX.mean[C]<3000", true},
		{"#YNDX.mean[C]>3000 or #YNDX.mean[C]>2000", true},
		{"not #YNDX.mean[C]>3000", true},
		{"#YNDX.mean[C]>2000 and not #YNDX.mean[C]>2000", false},
	}
	for _, tc := range cases {
		got, err := evalRule(t, keeper, tc.rule)
		if err != nil {
			t.Errorf("%q: eval: %v", tc.rule, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %v, want %v", tc.rule, got, tc.want)
		}
	}
}

func TestEvalArithmetic(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {{Datetime: 100, MeanPrice: 100}},
	}}

	got, err := evalRule(t, keeper, "(#YNDX.mean[C] * 2 + 50) / 5 == 50")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Error("expected (100*2+50)/5 == 50")
	}
}

func TestEvalEmptySeriesIsFetchError(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{}}

	_, err := evalRule(t, keeper, "#YNDX.mean[C]>0")
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError on empty series, got %v", err)
	}
	if !errors.Is(err, model.ErrNoData) {
		t.Errorf("expected ErrNoData cause, got %v", err)
	}
}

func TestEvalPropagatesKeeperError(t *testing.T) {
	keeper := &stubKeeper{err: &model.FetchError{Aggregator: model.AggregatorMOEX, Err: errors.New("timeout")}}

	_, err := evalRule(t, keeper, "#YNDX.mean[C]>0")
	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {{Datetime: 100, MeanPrice: 100}},
	}}

	_, err := evalRule(t, keeper, "#YNDX.mean[C] / 0 > 1")
	if !errors.Is(err, model.ErrWrongCondition) {
		t.Fatalf("expected ErrWrongCondition, got %v", err)
	}
}

func TestEvalCompiledFormDirectly(t *testing.T) {
	keeper := &stubKeeper{series: map[model.TickerNaming][]model.Candle{
		minuteNaming("YNDX"): {{Datetime: 100, MeanPrice: 2500}},
	}}

	node, err := Compile("fetch(moex:YNDX, minute, shares, stock, -1, 0).last(mean_price) > 2000")
	if err != nil {
		t.Fatalf("compile compiled form: %v", err)
	}
	got, err := NewEvaluator(keeper).EvalBool(context.Background(), node)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Error("expected true")
	}
}
