package models

import "time"

// PriceRange is a coarse price bucket ($ through $$$$).
type PriceRange string

const (
	PriceCheap     PriceRange = "$"
	PriceModerate  PriceRange = "$$"
	PriceExpensive PriceRange = "$$$"
	PriceLuxury    PriceRange = "$$$$"
)

// DropStatus is the lifecycle state of a drop.
type DropStatus string

const (
	DropUpcoming  DropStatus = "upcoming"
	DropMatched   DropStatus = "matched"
	DropCompleted DropStatus = "completed"
	DropCancelled DropStatus = "cancelled"
)

// MatchStatus is the lifecycle state of a match. Transitions are monotonic:
// pending moves to exactly one of confirmed, declined or cancelled.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchConfirmed MatchStatus = "confirmed"
	MatchDeclined  MatchStatus = "declined"
	MatchCancelled MatchStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchConfirmed || s == MatchDeclined || s == MatchCancelled
}

// Decision is a participant's response to a proposed match.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// Profile is a read-only snapshot of a user as seen by the matching core.
// Profile edits happen elsewhere; this service only ingests and reads them.
type Profile struct {
	UserID                  string     `json:"user_id"`
	DisplayName             string     `json:"display_name"`
	Interests               []string   `json:"interests"`
	CuisinePreferences      []string   `json:"cuisine_preferences"`
	PriceRange              PriceRange `json:"price_range"`
	Location                string     `json:"location"` // coarse region key
	PhoneNumber             string     `json:"phone_number,omitempty"`
	PhoneNumberVerified     bool       `json:"phone_number_verified"`
	SMSNotificationsEnabled bool       `json:"sms_notifications_enabled"`
}

// Drop is a time-boxed group dining event users register for.
type Drop struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	StartTime            time.Time  `json:"start_time"`
	RegistrationDeadline time.Time  `json:"registration_deadline"`
	Location             string     `json:"location"`
	PriceRange           PriceRange `json:"price_range"`
	MaxParticipants      int        `json:"max_participants"`
	Status               DropStatus `json:"status"`
}

// Registration records a user's membership in a drop.
type Registration struct {
	DropID       string    `json:"drop_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"` // "registered" or "cancelled"
	RegisteredAt time.Time `json:"registered_at"`
}

const RegistrationActive = "registered"

// Response is one participant's recorded decision on a match.
type Response struct {
	Status      Decision  `json:"status"`
	RespondedAt time.Time `json:"responded_at"`
}

// Match is a proposed pair of users for a drop. The pair is unordered;
// UserA/UserB follow sorted user-ID order, which is also the pair key order.
type Match struct {
	ID                string              `json:"id"`
	DropID            string              `json:"drop_id"`
	UserA             string              `json:"user_a"`
	UserB             string              `json:"user_b"`
	Compatibility     float64             `json:"compatibility"`
	CommonInterests   []string            `json:"common_interests"`
	CommonCuisines    []string            `json:"common_cuisines"`
	CuisinePreference string              `json:"cuisine_preference"`
	Status            MatchStatus         `json:"status"`
	Responses         map[string]Response `json:"responses"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	AcceptedAt        *time.Time          `json:"accepted_at,omitempty"`
}

// HasParticipant reports whether userID is one of the match's two users.
func (m *Match) HasParticipant(userID string) bool {
	return userID == m.UserA || userID == m.UserB
}

// Partner returns the other participant's ID.
func (m *Match) Partner(userID string) string {
	if userID == m.UserA {
		return m.UserB
	}
	return m.UserA
}

// OutcomeStatus labels the final resolution of a match.
type OutcomeStatus string

const (
	OutcomeSuccessful   OutcomeStatus = "successful"
	OutcomeUnsuccessful OutcomeStatus = "unsuccessful"
)

// Outcome is the write-once audit record of a resolved match. It is distinct
// from the mutable Match row and is never updated after insert.
type Outcome struct {
	ID            string        `json:"id"`
	MatchID       string        `json:"match_id"`
	DropID        string        `json:"drop_id"`
	UserA         string        `json:"user_a"`
	UserB         string        `json:"user_b"`
	DecisionA     Decision      `json:"decision_a"`
	DecisionB     Decision      `json:"decision_b"`
	Compatibility float64       `json:"compatibility"`
	Status        OutcomeStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Notification is an in-app notification record for one recipient.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

// SMSMessage is an outbound-message record. An external worker drains the
// outbox and talks to the telephony provider; this service never does.
type SMSMessage struct {
	ID        string    `json:"id"`
	To        string    `json:"to"` // normalized digits with country code
	Body      string    `json:"body"`
	Status    string    `json:"status"` // "pending" until the worker claims it
	CreatedAt time.Time `json:"created_at"`
}

const SMSPending = "pending"

// SubmitResponseRequest is the body for the submit-response endpoint.
type SubmitResponseRequest struct {
	UserID   string `json:"user_id"`
	Decision string `json:"decision"`
}

// SubmitResponseResult reports whether a response was applied and the match
// status after the call. Applied is false for terminal no-op resubmissions.
type SubmitResponseResult struct {
	Applied bool        `json:"applied"`
	Status  MatchStatus `json:"status"`
}

// RegistrationRequest is the body for registering a user to a drop.
type RegistrationRequest struct {
	UserID string `json:"user_id"`
}

// DropRunError describes a per-drop failure inside a matching pass.
type DropRunError struct {
	DropID string `json:"drop_id"`
	Error  string `json:"error"`
}

// RunSummary reports what one matching pass did.
type RunSummary struct {
	DropsScanned   int            `json:"drops_scanned"`
	DropsMatched   int            `json:"drops_matched"`
	MatchesCreated int            `json:"matches_created"`
	Unmatched      int            `json:"unmatched"`
	Errors         []DropRunError `json:"errors,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
