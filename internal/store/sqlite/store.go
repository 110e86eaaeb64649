// Package sqlite is the persistent store: the ticker catalogue, one candle
// table per catalogue row, and the notification catalogue.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/Qolorerr/Athena/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single SQLite database. Every operation runs in its own
// short-lived transaction; SQLite serializes concurrent writers.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the catalogue schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticker (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			aggregator TEXT NOT NULL,
			timespan   TEXT NOT NULL,
			UNIQUE (name, aggregator, timespan)
		);

		CREATE TABLE IF NOT EXISTS notification (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id          INTEGER NOT NULL,
			condition        TEXT NOT NULL,
			origin_condition TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS notification_chat_condition
			ON notification (chat_id, condition);
	`)
	return err
}

// validIdent guards candle table names: symbols are letters/digits only, so
// anything else never reaches string-built SQL.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// UpsertCandles inserts rows into the naming's candle table, creating the
// catalogue row and the table on first call. On timestamp collision the
// later-written row wins (INSERT OR REPLACE on the datetime primary key).
func (s *Store) UpsertCandles(naming model.TickerNaming, rows []model.Candle) error {
	if len(rows) == 0 {
		return nil
	}
	if !validIdent(naming.Symbol) {
		return fmt.Errorf("sqlite: invalid symbol %q", naming.Symbol)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO ticker (name, aggregator, timespan) VALUES (?, ?, ?)`,
		naming.Symbol, naming.Aggregator.String(), naming.Span.String(),
	); err != nil {
		return fmt.Errorf("sqlite upsert ticker: %w", err)
	}

	cols := naming.Aggregator.Columns()
	if err := createCandleTable(tx, naming.StorageName(), cols); err != nil {
		return err
	}

	names := make([]string, 0, len(cols)+1)
	names = append(names, model.ColDatetime)
	for _, c := range cols {
		names = append(names, c.StorageName())
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT OR REPLACE INTO %q (%s) VALUES (%s)`,
		naming.StorageName(), strings.Join(names, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("sqlite prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, 0, len(names))
		args = append(args, row.Datetime)
		for _, c := range cols {
			args = append(args, row.Value(c))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}

	return tx.Commit()
}

func createCandleTable(tx *sql.Tx, table string, cols []model.Column) error {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, model.ColDatetime+" INTEGER PRIMARY KEY")
	for _, c := range cols {
		defs = append(defs, c.StorageName()+" REAL")
	}
	_, err := tx.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, table, strings.Join(defs, ", ")))
	if err != nil {
		return fmt.Errorf("sqlite create table %s: %w", table, err)
	}
	return nil
}

// ReadCandles returns rows in [start, end] sorted ascending by datetime.
// Returns nil with no error if the catalogue entry does not exist.
func (s *Store) ReadCandles(naming model.TickerNaming, start, end int64) ([]model.Candle, error) {
	if !validIdent(naming.Symbol) {
		return nil, fmt.Errorf("sqlite: invalid symbol %q", naming.Symbol)
	}

	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM ticker WHERE name = ? AND aggregator = ? AND timespan = ?`,
		naming.Symbol, naming.Aggregator.String(), naming.Span.String(),
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticker: %w", err)
	}

	// Catalogue rows may exist before their table (created lazily on the
	// first upsert).
	var table string
	err = s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
		naming.StorageName(),
	).Scan(&table)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query master: %w", err)
	}

	cols := naming.Aggregator.Columns()
	names := make([]string, 0, len(cols)+1)
	names = append(names, model.ColDatetime)
	for _, c := range cols {
		names = append(names, c.StorageName())
	}

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT %s FROM %q WHERE %s >= ? AND %s <= ? ORDER BY %s ASC`,
		strings.Join(names, ", "), naming.StorageName(),
		model.ColDatetime, model.ColDatetime, model.ColDatetime,
	), start, end)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		vals := make([]float64, len(cols))
		dest := make([]any, 0, len(cols)+1)
		dest = append(dest, &c.Datetime)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		for i, col := range cols {
			c.SetValue(col, vals[i])
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ListTickers returns every catalogue entry.
func (s *Store) ListTickers() ([]model.TickerRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, aggregator, timespan FROM ticker ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tickers: %w", err)
	}
	defer rows.Close()

	var records []model.TickerRecord
	for rows.Next() {
		var r model.TickerRecord
		var agg, span string
		if err := rows.Scan(&r.ID, &r.Name, &agg, &span); err != nil {
			return nil, fmt.Errorf("sqlite scan ticker: %w", err)
		}
		r.Aggregator = model.Aggregator(agg)
		r.Span = model.TimeSpan(span)
		records = append(records, r)
	}
	return records, rows.Err()
}

// AddNotification inserts a notification, or returns the existing row
// unchanged when the same (chat, compiled) pair is already stored.
func (s *Store) AddNotification(chatID int64, compiled, origin string) (model.Notification, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return model.Notification{}, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var n model.Notification
	err = tx.QueryRow(
		`SELECT id, chat_id, condition, origin_condition FROM notification WHERE chat_id = ? AND condition = ?`,
		chatID, compiled,
	).Scan(&n.ID, &n.ChatID, &n.Compiled, &n.Origin)
	if err == nil {
		return n, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return model.Notification{}, fmt.Errorf("sqlite query notification: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO notification (chat_id, condition, origin_condition) VALUES (?, ?, ?)`,
		chatID, compiled, origin,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("sqlite insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Notification{}, fmt.Errorf("sqlite last insert id: %w", err)
	}

	n = model.Notification{ID: id, ChatID: chatID, Compiled: compiled, Origin: origin}
	return n, tx.Commit()
}

// GetNotifications returns the notifications for one chat, keyed by id.
func (s *Store) GetNotifications(chatID int64) (map[int64]model.Notification, error) {
	return s.queryNotifications(`SELECT id, chat_id, condition, origin_condition FROM notification WHERE chat_id = ?`, chatID)
}

// GetAllNotifications returns every stored notification, keyed by id.
func (s *Store) GetAllNotifications() (map[int64]model.Notification, error) {
	return s.queryNotifications(`SELECT id, chat_id, condition, origin_condition FROM notification`)
}

func (s *Store) queryNotifications(query string, args ...any) (map[int64]model.Notification, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query notifications: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]model.Notification)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.ChatID, &n.Compiled, &n.Origin); err != nil {
			return nil, fmt.Errorf("sqlite scan notification: %w", err)
		}
		result[n.ID] = n
	}
	return result, rows.Err()
}

// RemoveNotification deletes a notification by id.
func (s *Store) RemoveNotification(id int64) error {
	res, err := s.db.Exec(`DELETE FROM notification WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", model.ErrNonexistentNotification, id)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
