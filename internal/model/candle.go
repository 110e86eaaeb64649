package model

// Candle is one fixed-width bar of market data. Only the columns of the
// owning aggregator are populated: mean/vol/high/low for candle sources,
// long/short/number_long/number_short for the open-interest analytics.
type Candle struct {
	Datetime int64 // bar timestamp, Unix seconds UTC

	MeanPrice float64
	Volume    float64
	High      float64
	Low       float64

	Long        float64
	Short       float64
	NumberLong  float64
	NumberShort float64
}

// Value returns the candle's value for the given column.
func (c Candle) Value(col Column) float64 {
	switch col {
	case ColMean:
		return c.MeanPrice
	case ColVol:
		return c.Volume
	case ColHigh:
		return c.High
	case ColLow:
		return c.Low
	case ColLong:
		return c.Long
	case ColShort:
		return c.Short
	case ColLongNumb:
		return c.NumberLong
	case ColShortNumb:
		return c.NumberShort
	}
	return 0
}

// SetValue sets the candle's value for the given column.
func (c *Candle) SetValue(col Column, v float64) {
	switch col {
	case ColMean:
		c.MeanPrice = v
	case ColVol:
		c.Volume = v
	case ColHigh:
		c.High = v
	case ColLow:
		c.Low = v
	case ColLong:
		c.Long = v
	case ColShort:
		c.Short = v
	case ColLongNumb:
		c.NumberLong = v
	case ColShortNumb:
		c.NumberShort = v
	}
}
