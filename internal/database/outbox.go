package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"drop-match-api/internal/models"
)

// InsertOutcome persists the write-once audit record for a resolved match.
// A second insert for the same match is silently ignored so the losing side
// of a side-effect race cannot duplicate the record.
func (db *DB) InsertOutcome(ctx context.Context, o models.Outcome) error {
	query := `INSERT INTO match_outcomes (
		id, match_id, drop_id, user_a, user_b, decision_a, decision_b,
		compatibility, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(match_id) DO NOTHING`

	_, err := db.conn.ExecContext(
		ctx,
		query,
		o.ID,
		o.MatchID,
		o.DropID,
		o.UserA,
		o.UserB,
		string(o.DecisionA),
		string(o.DecisionB),
		o.Compatibility,
		string(o.Status),
		formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}

	return nil
}

// GetOutcome returns the outcome record for a match, or ErrNotFound.
func (db *DB) GetOutcome(ctx context.Context, matchID string) (models.Outcome, error) {
	query := `SELECT id, match_id, drop_id, user_a, user_b, decision_a,
		decision_b, compatibility, status, created_at
		FROM match_outcomes WHERE match_id = ?`

	var o models.Outcome
	var createdStr string

	err := db.conn.QueryRowContext(ctx, query, matchID).Scan(
		&o.ID,
		&o.MatchID,
		&o.DropID,
		&o.UserA,
		&o.UserB,
		&o.DecisionA,
		&o.DecisionB,
		&o.Compatibility,
		&o.Status,
		&createdStr,
	)
	if err == sql.ErrNoRows {
		return models.Outcome{}, ErrNotFound
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to get outcome: %w", err)
	}

	if o.CreatedAt, err = parseTime(createdStr); err != nil {
		return models.Outcome{}, err
	}

	return o, nil
}

// InsertNotification records an in-app notification for one recipient.
func (db *DB) InsertNotification(ctx context.Context, n models.Notification) error {
	dataJSON, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to serialize notification data: %w", err)
	}

	_, err = db.conn.ExecContext(
		ctx,
		`INSERT INTO notifications (id, user_id, title, body, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		string(dataJSON),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListUserNotifications returns a user's notifications, newest first.
func (db *DB) ListUserNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, title, body, data, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var dataJSON, createdStr string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &dataJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Data = make(map[string]string)
		if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
			return nil, fmt.Errorf("failed to parse notification data: %w", err)
		}
		if n.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return out, nil
}

// InsertSMS enqueues an outbound SMS for the external delivery worker.
func (db *DB) InsertSMS(ctx context.Context, s models.SMSMessage) error {
	_, err := db.conn.ExecContext(
		ctx,
		`INSERT INTO sms_outbox (id, to_number, body, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID,
		s.To,
		s.Body,
		s.Status,
		formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sms: %w", err)
	}

	return nil
}

// ListPendingSMS returns undelivered outbox rows, oldest first.
func (db *DB) ListPendingSMS(ctx context.Context, limit int) ([]models.SMSMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, to_number, body, status, created_at
		FROM sms_outbox WHERE status = ? ORDER BY created_at LIMIT ?`,
		models.SMSPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sms outbox: %w", err)
	}
	defer rows.Close()

	var out []models.SMSMessage
	for rows.Next() {
		var s models.SMSMessage
		var createdStr string
		if err := rows.Scan(&s.ID, &s.To, &s.Body, &s.Status, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan sms: %w", err)
		}
		if s.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sms outbox: %w", err)
	}

	return out, nil
}
