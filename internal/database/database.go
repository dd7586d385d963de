package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound       = errors.New("database: record not found")
	ErrAlreadyMatched = errors.New("database: drop is not claimable for matching")
	ErrNotParticipant = errors.New("database: user is not a participant of the match")
	ErrConflict       = errors.New("database: concurrent update conflict")
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			interests TEXT NOT NULL,
			cuisine_preferences TEXT NOT NULL,
			price_range TEXT NOT NULL,
			location TEXT NOT NULL,
			phone_number TEXT NOT NULL DEFAULT '',
			phone_number_verified INTEGER NOT NULL DEFAULT 0,
			sms_notifications_enabled INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS drops (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			start_time TEXT NOT NULL,
			registration_deadline TEXT NOT NULL,
			location TEXT NOT NULL,
			price_range TEXT NOT NULL,
			max_participants INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'upcoming',
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			drop_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'registered',
			registered_at TEXT NOT NULL,
			PRIMARY KEY (drop_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			drop_id TEXT NOT NULL,
			pair_key TEXT NOT NULL,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			compatibility REAL NOT NULL,
			common_interests TEXT NOT NULL,
			common_cuisines TEXT NOT NULL,
			cuisine_preference TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			responses TEXT NOT NULL DEFAULT '{}',
			version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			accepted_at TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_drop_pair ON matches(drop_id, pair_key)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_drop ON matches(drop_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_user_a ON matches(user_a)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_user_b ON matches(user_b)`,
		`CREATE TABLE IF NOT EXISTS match_outcomes (
			id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL UNIQUE,
			drop_id TEXT NOT NULL,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			decision_a TEXT NOT NULL,
			decision_b TEXT NOT NULL,
			compatibility REAL NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id)`,
		`CREATE TABLE IF NOT EXISTS sms_outbox (
			id TEXT PRIMARY KEY,
			to_number TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sms_outbox_status ON sms_outbox(status)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// serializeStrings converts a string slice to its JSON TEXT column form.
func serializeStrings(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// deserializeStrings converts a JSON TEXT column back to a slice.
func deserializeStrings(serialized string) []string {
	if serialized == "" || serialized == "[]" {
		return []string{}
	}

	var result []string
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return []string{}
	}
	return result
}

// formatTime renders a timestamp for a TEXT column. The layout is fixed
// width in UTC so lexical comparison in SQL matches chronological order;
// RFC3339Nano would trim trailing zeros and break that.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
