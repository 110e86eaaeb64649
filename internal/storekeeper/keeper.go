// Package storekeeper glues the aggregator adapters to the persistent store.
// It is the only data source the expression evaluator talks to.
package storekeeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

// Registry resolves an aggregator to its adapter.
type Registry interface {
	Client(a model.Aggregator) (model.Downloader, bool)
}

// Keeper serves bar-offset range queries with on-demand refill: read the
// store first and go upstream only when the cached window is short.
type Keeper struct {
	store    model.CandleStore
	registry Registry

	// OnFetch is an optional hook called after each cache decision,
	// with hit=true when the store satisfied the request.
	OnFetch func(agg model.Aggregator, hit bool)

	now func() time.Time
}

// New creates a Keeper over a store and an adapter registry.
func New(store model.CandleStore, registry Registry) *Keeper {
	return &Keeper{store: store, registry: registry, now: time.Now}
}

// GetTicker returns the bars for the window [startBar, endBar] expressed as
// non-positive offsets from "now" (zero is the current bar). The result is
// sorted ascending by datetime with no duplicate timestamps.
func (k *Keeper) GetTicker(ctx context.Context, naming model.TickerNaming, startBar, endBar int) ([]model.Candle, error) {
	if startBar >= endBar {
		return nil, fmt.Errorf("%w: invalid bar window [%d, %d]", model.ErrWrongCondition, startBar, endBar)
	}

	width := naming.Span.Width()
	now := k.now()
	start := now.Add(time.Duration(startBar) * width)
	end := now.Add(time.Duration(endBar) * width)

	cached, err := k.store.ReadCandles(naming, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	want := endBar - startBar
	if len(cached) >= want {
		if k.OnFetch != nil {
			k.OnFetch(naming.Aggregator, true)
		}
		return cached, nil
	}

	adapter, ok := k.registry.Client(naming.Aggregator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownAggregator, naming.Aggregator)
	}
	if k.OnFetch != nil {
		k.OnFetch(naming.Aggregator, false)
	}

	hints := model.Hints{Market: naming.Market, Engine: naming.Engine}
	fetched, err := adapter.Download(ctx, naming.Symbol, start, end, naming.Span, hints)
	if err != nil {
		return nil, err
	}
	fetched = clip(fetched, start.Unix(), end.Unix())
	if len(fetched) > 0 {
		if err := k.store.UpsertCandles(naming, fetched); err != nil {
			return nil, err
		}
	}

	// Re-read so cached and fresh rows come back merged, deduplicated and
	// sorted by the store.
	merged, err := k.store.ReadCandles(naming, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	log.Printf("[storekeeper] %s %s: %d cached, %d fetched, %d served",
		naming.Symbol, naming.Span, len(cached), len(fetched), len(merged))
	return merged, nil
}

// clip drops rows outside [start, end].
func clip(rows []model.Candle, start, end int64) []model.Candle {
	out := rows[:0]
	for _, r := range rows {
		if r.Datetime >= start && r.Datetime <= end {
			out = append(out, r)
		}
	}
	return out
}
