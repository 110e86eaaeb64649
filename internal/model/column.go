package model

import "fmt"

// Column is a named numeric field within a candle. The enum value is the DSL
// code; StorageName is the column name in the candle tables.
type Column string

const (
	ColMean      Column = "mean"
	ColVol       Column = "vol"
	ColHigh      Column = "high"
	ColLow       Column = "low"
	ColLong      Column = "long"
	ColShort     Column = "short"
	ColLongNumb  Column = "long_numb"
	ColShortNumb Column = "short_numb"
)

// ColDatetime is the per-row timestamp column (seconds since epoch, integer).
const ColDatetime = "datetime"

var columnStorageNames = map[Column]string{
	ColMean:      "mean_price",
	ColVol:       "volume",
	ColHigh:      "high",
	ColLow:       "low",
	ColLong:      "long",
	ColShort:     "short",
	ColLongNumb:  "number_long",
	ColShortNumb: "number_short",
}

// StorageName returns the canonical column name used in candle tables.
func (c Column) StorageName() string { return columnStorageNames[c] }

// Valid reports whether c is a known column.
func (c Column) Valid() bool {
	_, ok := columnStorageNames[c]
	return ok
}

func (c Column) String() string { return string(c) }

// ParseColumn resolves a DSL column code to a column.
func ParseColumn(code string) (Column, error) {
	c := Column(code)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown column %q", ErrWrongCondition, code)
	}
	return c, nil
}

// ParseStorageColumn resolves a canonical storage name back to a column.
// Compiled conditions reference columns by storage name.
func ParseStorageColumn(name string) (Column, error) {
	for col, storage := range columnStorageNames {
		if storage == name {
			return col, nil
		}
	}
	return "", fmt.Errorf("%w: unknown column %q", ErrWrongCondition, name)
}

// Columns returns the candle columns an aggregator produces, in storage order.
func (a Aggregator) Columns() []Column {
	switch a {
	case AggregatorMOEXAnalytic:
		return []Column{ColLong, ColShort, ColLongNumb, ColShortNumb}
	default:
		return []Column{ColMean, ColVol, ColHigh, ColLow}
	}
}
