package model

import (
	"context"
	"time"
)

// ── Port interfaces ──
// These decouple the expression pipeline and the condition processor from
// concrete implementations (SQLite, MOEX HTTP, Telegram).

// Hints carries per-aggregator routing parameters for a download.
type Hints struct {
	Market string
	Engine string
}

// Downloader is the uniform fetch contract every aggregator adapter
// implements. The window is half-open: [start, end). An empty result with a
// nil error is legal and means "no data in window".
type Downloader interface {
	Download(ctx context.Context, symbol string, start, end time.Time, span TimeSpan, hints Hints) ([]Candle, error)
}

// CandleStore is the persistence surface the store-keeper reads and refills.
type CandleStore interface {
	// UpsertCandles inserts rows, keeping the later-written row on
	// timestamp collision. Creates the catalogue row and data table on
	// first call for a naming.
	UpsertCandles(naming TickerNaming, rows []Candle) error

	// ReadCandles returns rows in [start, end] sorted ascending with no
	// duplicate timestamps, or nil if the catalogue entry does not exist.
	ReadCandles(naming TickerNaming, start, end int64) ([]Candle, error)
}

// NotificationStore persists user rules.
type NotificationStore interface {
	// AddNotification returns the existing row unchanged if one with the
	// same (chat, compiled) exists, else inserts and returns the new row.
	AddNotification(chatID int64, compiled, origin string) (Notification, error)

	// GetNotifications returns notifications for one chat, keyed by id.
	GetNotifications(chatID int64) (map[int64]Notification, error)

	// GetAllNotifications returns every stored notification, keyed by id.
	GetAllNotifications() (map[int64]Notification, error)

	// RemoveNotification fails with ErrNonexistentNotification if id is
	// not stored.
	RemoveNotification(id int64) error
}

// TickerReader is the only data capability the expression evaluator sees.
// startBar and endBar are non-positive bar offsets from "now".
type TickerReader interface {
	GetTicker(ctx context.Context, naming TickerNaming, startBar, endBar int) ([]Candle, error)
}

// Notifier delivers a text message to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// EventSink receives triggered-notification events for side channels
// (Redis stream, WebSocket observers). Implementations must not block.
type EventSink interface {
	PublishActivation(ctx context.Context, n Notification)
}
