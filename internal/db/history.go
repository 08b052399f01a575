package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/events"
)

// HistoryStore records relay events and race results.
type HistoryStore struct {
	db *Database
}

// Entry is one recorded event.
type Entry struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RaceResult is one finished race entry.
type RaceResult struct {
	ID        int64     `json:"id"`
	GUID      string    `json:"guid"`
	CtrlType  string    `json:"ctrl_type"`
	RaceTime  float64   `json:"race_time"`
	Position  int32     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHistoryStore opens the history database at path and migrates it.
func NewHistoryStore(path string) (*HistoryStore, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	h := &HistoryStore{db: database}
	if err := h.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// migrate creates the database schema. Times are unix milliseconds.
func (h *HistoryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS race_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guid TEXT NOT NULL,
			ctrl_type TEXT NOT NULL,
			race_time REAL NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
		CREATE INDEX IF NOT EXISTS idx_race_results_created_at ON race_results(created_at);
	`

	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("history schema migrated")
	return nil
}

// Close closes the underlying database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// Record stores e. Race results are also written to their own table.
func (h *HistoryStore) Record(e events.Event) error {
	payload := ""
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
		}
		payload = string(data)
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	at := e.Time.UnixMilli()

	return h.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO events (type, source, payload, created_at) VALUES (?, ?, ?, ?)",
			string(e.Type), e.Source, payload, at,
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}

		if r, ok := e.Payload.(events.RacePayload); ok {
			if _, err := tx.Exec(
				"INSERT INTO race_results (guid, ctrl_type, race_time, position, created_at) VALUES (?, ?, ?, ?, ?)",
				r.GUID, r.CtrlType, r.RaceTime, r.Position, at,
			); err != nil {
				return fmt.Errorf("failed to insert race result: %w", err)
			}
		}
		return nil
	})
}

// Recent returns up to limit events, newest first.
func (h *HistoryStore) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		"SELECT id, type, source, payload, created_at FROM events ORDER BY created_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var payload string
		var at int64
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		e.CreatedAt = time.UnixMilli(at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Results returns up to limit race results, newest first.
func (h *HistoryStore) Results(limit int) ([]RaceResult, error) {
	rows, err := h.db.Query(
		"SELECT id, guid, ctrl_type, race_time, position, created_at FROM race_results ORDER BY created_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query race results: %w", err)
	}
	defer rows.Close()

	results := make([]RaceResult, 0)
	for rows.Next() {
		var r RaceResult
		var at int64
		if err := rows.Scan(&r.ID, &r.GUID, &r.CtrlType, &r.RaceTime, &r.Position, &at); err != nil {
			return nil, fmt.Errorf("failed to scan race result: %w", err)
		}
		r.CreatedAt = time.UnixMilli(at).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune deletes everything recorded before cutoff and returns how many rows went.
func (h *HistoryStore) Prune(cutoff time.Time) (int64, error) {
	var removed int64
	err := h.db.Transaction(func(tx *sql.Tx) error {
		for _, table := range []string{"events", "race_results"} {
			res, err := tx.Exec("DELETE FROM "+table+" WHERE created_at < ?", cutoff.UnixMilli())
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Subscribe records every relay event except dropped datagrams.
func (h *HistoryStore) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAny, "history.record", func(ctx context.Context, e events.Event) error {
		if e.Type == events.EventDecodeError {
			return nil
		}
		return h.Record(e)
	})
}
