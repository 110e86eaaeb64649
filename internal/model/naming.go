package model

import "fmt"

// Default MOEX routing hints for equity candles.
const (
	DefaultMarket = "shares"
	DefaultEngine = "stock"
)

// TickerNaming is a fully-qualified data request handle: symbol, source,
// bar width, plus per-aggregator routing hints. Two namings are equal iff
// all four qualifiers match (hints included), so the struct is comparable.
type TickerNaming struct {
	Symbol     string
	Aggregator Aggregator
	Span       TimeSpan

	// MOEX routing hints.
	Market string
	Engine string
}

// NewTickerNaming builds a naming with the default MOEX hints.
func NewTickerNaming(symbol string, agg Aggregator, span TimeSpan) TickerNaming {
	return TickerNaming{
		Symbol:     symbol,
		Aggregator: agg,
		Span:       span,
		Market:     DefaultMarket,
		Engine:     DefaultEngine,
	}
}

// StorageName returns the deterministic candle table name,
// e.g. "moex_YNDX_T".
func (n TickerNaming) StorageName() string {
	return fmt.Sprintf("%s_%s_%s", n.Aggregator.ShortCode(), n.Symbol, n.Span.Letter())
}
