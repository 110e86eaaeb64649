package model

// Notification is a persisted rule owned by a chat. Origin is the raw user
// string kept for display; Compiled is the rewritten executable form, which
// references only stable API names and is re-parseable after a restart.
type Notification struct {
	ID       int64
	ChatID   int64
	Compiled string
	Origin   string
}

// TickerRecord is a catalogue entry pointing at a physical candle table
// (see TickerNaming.StorageName).
type TickerRecord struct {
	ID         int64
	Name       string
	Aggregator Aggregator
	Span       TimeSpan
}
