package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"drop-match-api/internal/models"
)

// PairKey returns the composite key for an unordered user pair. It exists
// only as a uniqueness guard on the matches table; it is never parsed back.
func PairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// CreateDropMatches atomically claims a drop for matching and inserts its
// matches. The claim is a check-and-set on the drop status inside the same
// transaction as the inserts, so two concurrent scheduler runs cannot both
// pair the same drop: the loser gets ErrAlreadyMatched and writes nothing.
func (db *DB) CreateDropMatches(ctx context.Context, dropID string, matches []models.Match) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE drops SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.DropMatched),
		formatTime(time.Now()),
		dropID,
		string(models.DropUpcoming),
	)
	if err != nil {
		return fmt.Errorf("failed to claim drop: %w", err)
	}

	claimed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if claimed == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drops WHERE id = ?`, dropID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check drop existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrAlreadyMatched
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO matches (
		id, drop_id, pair_key, user_a, user_b, compatibility,
		common_interests, common_cuisines, cuisine_preference,
		status, responses, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		responsesJSON, err := json.Marshal(m.Responses)
		if err != nil {
			return fmt.Errorf("failed to serialize responses for match %s: %w", m.ID, err)
		}

		_, err = stmt.ExecContext(
			ctx,
			m.ID,
			m.DropID,
			PairKey(m.UserA, m.UserB),
			m.UserA,
			m.UserB,
			m.Compatibility,
			serializeStrings(m.CommonInterests),
			serializeStrings(m.CommonCuisines),
			m.CuisinePreference,
			string(m.Status),
			string(responsesJSON),
			formatTime(m.CreatedAt),
			formatTime(m.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert match %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const matchColumns = `id, drop_id, user_a, user_b, compatibility,
	common_interests, common_cuisines, cuisine_preference,
	status, responses, version, created_at, updated_at, accepted_at`

// GetMatch returns a match by ID, or ErrNotFound.
func (db *DB) GetMatch(ctx context.Context, matchID string) (models.Match, error) {
	m, _, err := db.getMatchVersioned(ctx, matchID)
	return m, err
}

func (db *DB) getMatchVersioned(ctx context.Context, matchID string) (models.Match, int64, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, matchID)
	return scanMatch(row)
}

// ListDropMatches returns all matches for a drop.
func (db *DB) ListDropMatches(ctx context.Context, dropID string) ([]models.Match, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE drop_id = ? ORDER BY created_at, id`, dropID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, _, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return matches, nil
}

// GetUserMatch returns the match containing a user within a drop, or
// ErrNotFound if the user was left unmatched or never registered.
func (db *DB) GetUserMatch(ctx context.Context, dropID, userID string) (models.Match, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE drop_id = ? AND (user_a = ? OR user_b = ?)`,
		dropID, userID, userID)
	m, _, err := scanMatch(row)
	return m, err
}

func scanMatch(row rowScanner) (models.Match, int64, error) {
	var m models.Match
	var interests, cuisines, responsesJSON string
	var version int64
	var createdStr, updatedStr string
	var acceptedStr sql.NullString

	err := row.Scan(
		&m.ID,
		&m.DropID,
		&m.UserA,
		&m.UserB,
		&m.Compatibility,
		&interests,
		&cuisines,
		&m.CuisinePreference,
		&m.Status,
		&responsesJSON,
		&version,
		&createdStr,
		&updatedStr,
		&acceptedStr,
	)
	if err == sql.ErrNoRows {
		return models.Match{}, 0, ErrNotFound
	}
	if err != nil {
		return models.Match{}, 0, fmt.Errorf("failed to scan match: %w", err)
	}

	m.CommonInterests = deserializeStrings(interests)
	m.CommonCuisines = deserializeStrings(cuisines)

	m.Responses = make(map[string]models.Response)
	if err := json.Unmarshal([]byte(responsesJSON), &m.Responses); err != nil {
		return models.Match{}, 0, fmt.Errorf("failed to parse responses: %w", err)
	}

	if m.CreatedAt, err = parseTime(createdStr); err != nil {
		return models.Match{}, 0, err
	}
	if m.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return models.Match{}, 0, err
	}
	if acceptedStr.Valid {
		t, err := parseTime(acceptedStr.String)
		if err != nil {
			return models.Match{}, 0, err
		}
		m.AcceptedAt = &t
	}

	return m, version, nil
}

// ApplyResult reports the effect of applying one participant response.
type ApplyResult struct {
	// Applied is false when the match was already terminal (idempotent
	// no-op for retried client requests).
	Applied bool
	// Transition is the terminal status this call produced, or empty if
	// the match is still waiting on the other participant. Side effects
	// fire only for the call that owns the transition.
	Transition models.MatchStatus
	Match      models.Match
}

const applyResponseAttempts = 3

// ApplyResponse records one participant's decision and evaluates the joint
// outcome. The read-modify-write is guarded by a compare-and-swap on the
// match row version, so two near-simultaneous responses serialize: the loser
// retries against the fresh row and the "both responded" evaluation never
// misses a committed response or double-fires a transition.
func (db *DB) ApplyResponse(ctx context.Context, matchID, userID string, decision models.Decision, now time.Time) (ApplyResult, error) {
	for attempt := 0; attempt < applyResponseAttempts; attempt++ {
		m, version, err := db.getMatchVersioned(ctx, matchID)
		if err != nil {
			return ApplyResult{}, err
		}

		if !m.HasParticipant(userID) {
			return ApplyResult{}, ErrNotParticipant
		}

		if m.Status.IsTerminal() {
			return ApplyResult{Applied: false, Match: m}, nil
		}

		m.Responses[userID] = models.Response{Status: decision, RespondedAt: now}
		m.UpdatedAt = now

		next := evaluate(&m)
		m.Status = next
		if next == models.MatchConfirmed {
			t := now
			m.AcceptedAt = &t
		}

		ok, err := db.storeMatchVersioned(ctx, m, version)
		if err != nil {
			return ApplyResult{}, err
		}
		if !ok {
			continue // lost the race, re-read and retry
		}

		res := ApplyResult{Applied: true, Match: m}
		if next.IsTerminal() {
			res.Transition = next
		}
		return res, nil
	}

	return ApplyResult{}, ErrConflict
}

// evaluate applies the reconciliation rules to the responses recorded so
// far: any decline is immediately terminal (fail fast, even on the first
// response); confirmation requires both participants to have accepted.
func evaluate(m *models.Match) models.MatchStatus {
	for _, r := range m.Responses {
		if r.Status == models.DecisionDeclined {
			return models.MatchDeclined
		}
	}

	if len(m.Responses) < 2 {
		return models.MatchPending
	}
	return models.MatchConfirmed
}

func (db *DB) storeMatchVersioned(ctx context.Context, m models.Match, version int64) (bool, error) {
	responsesJSON, err := json.Marshal(m.Responses)
	if err != nil {
		return false, fmt.Errorf("failed to serialize responses: %w", err)
	}

	var acceptedAt interface{}
	if m.AcceptedAt != nil {
		acceptedAt = formatTime(*m.AcceptedAt)
	}

	res, err := db.conn.ExecContext(
		ctx,
		`UPDATE matches SET
			status = ?, responses = ?, updated_at = ?, accepted_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		string(m.Status),
		string(responsesJSON),
		formatTime(m.UpdatedAt),
		acceptedAt,
		m.ID,
		version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update match: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected == 1, nil
}
