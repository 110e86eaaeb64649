package model

import (
	"fmt"
	"strings"
)

// Aggregator identifies an upstream market-data source.
type Aggregator string

const (
	AggregatorMOEX         Aggregator = "moex"
	AggregatorMOEXAnalytic Aggregator = "moex_analytic"
)

// aggregatorShortCodes maps each aggregator to its four-letter code used in
// the rule syntax and in candle table names.
var aggregatorShortCodes = map[Aggregator]string{
	AggregatorMOEX:         "moex",
	AggregatorMOEXAnalytic: "mxnl",
}

// ShortCode returns the four-letter code for this aggregator (e.g. "mxnl").
func (a Aggregator) ShortCode() string {
	return aggregatorShortCodes[a]
}

// Valid reports whether a is a known aggregator.
func (a Aggregator) Valid() bool {
	_, ok := aggregatorShortCodes[a]
	return ok
}

func (a Aggregator) String() string { return string(a) }

// ParseAggregatorCode resolves a short code from the rule syntax
// (case-insensitive, e.g. "MOEX", "mxnl") to an aggregator identity.
func ParseAggregatorCode(code string) (Aggregator, error) {
	lower := strings.ToLower(code)
	for agg, short := range aggregatorShortCodes {
		if short == lower {
			return agg, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNonexistentAggregator, lower)
}

// ParseAggregator resolves a full aggregator name ("moex", "moex_analytic").
func ParseAggregator(name string) (Aggregator, error) {
	a := Aggregator(strings.ToLower(name))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %s", ErrNonexistentAggregator, name)
	}
	return a, nil
}
