package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"drop-match-api/internal/models"
)

// UpsertProfile creates or replaces a profile snapshot.
func (db *DB) UpsertProfile(ctx context.Context, p models.Profile) error {
	query := `INSERT INTO profiles (
		user_id, display_name, interests, cuisine_preferences, price_range,
		location, phone_number, phone_number_verified, sms_notifications_enabled, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		interests = excluded.interests,
		cuisine_preferences = excluded.cuisine_preferences,
		price_range = excluded.price_range,
		location = excluded.location,
		phone_number = excluded.phone_number,
		phone_number_verified = excluded.phone_number_verified,
		sms_notifications_enabled = excluded.sms_notifications_enabled,
		updated_at = excluded.updated_at`

	_, err := db.conn.ExecContext(
		ctx,
		query,
		p.UserID,
		p.DisplayName,
		serializeStrings(p.Interests),
		serializeStrings(p.CuisinePreferences),
		string(p.PriceRange),
		p.Location,
		p.PhoneNumber,
		p.PhoneNumberVerified,
		p.SMSNotificationsEnabled,
		formatTime(time.Now()),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// GetProfile returns the profile for a user, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	query := `SELECT user_id, display_name, interests, cuisine_preferences, price_range,
		location, phone_number, phone_number_verified, sms_notifications_enabled
		FROM profiles WHERE user_id = ?`

	var p models.Profile
	var interests, cuisines string

	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.DisplayName,
		&interests,
		&cuisines,
		&p.PriceRange,
		&p.Location,
		&p.PhoneNumber,
		&p.PhoneNumberVerified,
		&p.SMSNotificationsEnabled,
	)
	if err == sql.ErrNoRows {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	p.Interests = deserializeStrings(interests)
	p.CuisinePreferences = deserializeStrings(cuisines)
	return p, nil
}
