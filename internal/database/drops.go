package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"drop-match-api/internal/models"
)

// UpsertDrop creates or updates a drop. New drops default to upcoming.
func (db *DB) UpsertDrop(ctx context.Context, d models.Drop) error {
	if d.Status == "" {
		d.Status = models.DropUpcoming
	}

	query := `INSERT INTO drops (
		id, title, start_time, registration_deadline, location, price_range,
		max_participants, status, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		start_time = excluded.start_time,
		registration_deadline = excluded.registration_deadline,
		location = excluded.location,
		price_range = excluded.price_range,
		max_participants = excluded.max_participants,
		status = excluded.status,
		updated_at = excluded.updated_at`

	_, err := db.conn.ExecContext(
		ctx,
		query,
		d.ID,
		d.Title,
		formatTime(d.StartTime),
		formatTime(d.RegistrationDeadline),
		d.Location,
		string(d.PriceRange),
		d.MaxParticipants,
		string(d.Status),
		formatTime(time.Now()),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert drop: %w", err)
	}

	return nil
}

// GetDrop returns a drop by ID, or ErrNotFound.
func (db *DB) GetDrop(ctx context.Context, dropID string) (models.Drop, error) {
	query := `SELECT id, title, start_time, registration_deadline, location,
		price_range, max_participants, status
		FROM drops WHERE id = ?`

	return db.scanDrop(db.conn.QueryRowContext(ctx, query, dropID))
}

// ListDueDrops returns drops with status upcoming whose start time has
// arrived. These are the drops a scheduler pass will try to pair.
func (db *DB) ListDueDrops(ctx context.Context, now time.Time) ([]models.Drop, error) {
	query := `SELECT id, title, start_time, registration_deadline, location,
		price_range, max_participants, status
		FROM drops
		WHERE status = ? AND start_time <= ?
		ORDER BY start_time`

	rows, err := db.conn.QueryContext(ctx, query, string(models.DropUpcoming), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query due drops: %w", err)
	}
	defer rows.Close()

	var drops []models.Drop
	for rows.Next() {
		d, err := db.scanDrop(rows)
		if err != nil {
			return nil, err
		}
		drops = append(drops, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drops: %w", err)
	}

	return drops, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanDrop(row rowScanner) (models.Drop, error) {
	var d models.Drop
	var startStr, deadlineStr string

	err := row.Scan(
		&d.ID,
		&d.Title,
		&startStr,
		&deadlineStr,
		&d.Location,
		&d.PriceRange,
		&d.MaxParticipants,
		&d.Status,
	)
	if err == sql.ErrNoRows {
		return models.Drop{}, ErrNotFound
	}
	if err != nil {
		return models.Drop{}, fmt.Errorf("failed to scan drop: %w", err)
	}

	if d.StartTime, err = parseTime(startStr); err != nil {
		return models.Drop{}, err
	}
	if d.RegistrationDeadline, err = parseTime(deadlineStr); err != nil {
		return models.Drop{}, err
	}

	return d, nil
}

// CreateRegistration records a user's registration for a drop. Re-registering
// refreshes the row rather than duplicating it.
func (db *DB) CreateRegistration(ctx context.Context, r models.Registration) error {
	if r.Status == "" {
		r.Status = models.RegistrationActive
	}

	query := `INSERT INTO registrations (drop_id, user_id, status, registered_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(drop_id, user_id) DO UPDATE SET
		status = excluded.status,
		registered_at = excluded.registered_at`

	_, err := db.conn.ExecContext(ctx, query, r.DropID, r.UserID, r.Status, formatTime(r.RegisteredAt))
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}

	return nil
}

// ListActiveRegistrations returns the user IDs registered for a drop, in
// registration order. Pairing depends on this ordering being stable.
func (db *DB) ListActiveRegistrations(ctx context.Context, dropID string) ([]models.Registration, error) {
	query := `SELECT drop_id, user_id, status, registered_at
		FROM registrations
		WHERE drop_id = ? AND status = ?
		ORDER BY registered_at, user_id`

	rows, err := db.conn.QueryContext(ctx, query, dropID, models.RegistrationActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var r models.Registration
		var registeredStr string
		if err := rows.Scan(&r.DropID, &r.UserID, &r.Status, &registeredStr); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		if r.RegisteredAt, err = parseTime(registeredStr); err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}

	return regs, nil
}
