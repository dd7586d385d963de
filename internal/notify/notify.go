// Package notify builds and records outbound notification requests for the
// match lifecycle. Delivery is somebody else's job: in-app notifications are
// rows a client polls, SMS messages are outbox rows an external worker
// drains. Failures here are logged and never propagated, so a notification
// hiccup can never roll back a match transition.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"drop-match-api/internal/database"
	"drop-match-api/internal/models"
)

// Dispatcher writes notification and SMS records for match events.
type Dispatcher struct {
	db                 *database.DB
	defaultCountryCode string
	smsEnabled         func() bool
}

// NewDispatcher creates a dispatcher. smsEnabled is consulted per send so a
// feature flag can flip SMS emission at runtime.
func NewDispatcher(db *database.DB, defaultCountryCode string, smsEnabled func() bool) *Dispatcher {
	if smsEnabled == nil {
		smsEnabled = func() bool { return true }
	}
	return &Dispatcher{
		db:                 db,
		defaultCountryCode: defaultCountryCode,
		smsEnabled:         smsEnabled,
	}
}

// MatchCreated notifies one participant that they have been paired. If the
// recipient has a verified phone and SMS opt-in, an SMS with the same
// content is enqueued as well.
func (d *Dispatcher) MatchCreated(ctx context.Context, recipient, partner models.Profile, m models.Match) {
	title := "You've been matched!"
	body := matchCreatedBody(partner.DisplayName, m)

	d.record(ctx, models.Notification{
		ID:     uuid.New().String(),
		UserID: recipient.UserID,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"type":       "match_created",
			"match_id":   m.ID,
			"drop_id":    m.DropID,
			"partner_id": partner.UserID,
		},
		CreatedAt: time.Now().UTC(),
	})

	if recipient.PhoneNumberVerified && recipient.SMSNotificationsEnabled {
		d.sms(ctx, recipient.PhoneNumber, fmt.Sprintf("Hey %s! %s", recipient.DisplayName, body))
	}
}

// MatchOutcome notifies one participant of the final resolution.
func (d *Dispatcher) MatchOutcome(ctx context.Context, recipientID, partnerName string, m models.Match) {
	title := "Match update"
	var body string
	switch m.Status {
	case models.MatchConfirmed:
		title = "It's a date!"
		body = fmt.Sprintf("You and %s are both in. Enjoy your %s!", partnerName, m.CuisinePreference)
	case models.MatchDeclined:
		body = "Your match for this drop didn't work out this time."
	default:
		body = fmt.Sprintf("Your match is now %s.", m.Status)
	}

	d.record(ctx, models.Notification{
		ID:     uuid.New().String(),
		UserID: recipientID,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"type":     "match_outcome",
			"match_id": m.ID,
			"drop_id":  m.DropID,
			"status":   string(m.Status),
		},
		CreatedAt: time.Now().UTC(),
	})
}

// ConfirmedSMS sends each participant the other's name and phone number
// after a confirmation. If either side has no usable phone number the
// exchange is silently skipped; a half-shared number helps nobody.
func (d *Dispatcher) ConfirmedSMS(ctx context.Context, a, b models.Profile, m models.Match) {
	phoneA := NormalizePhone(a.PhoneNumber, d.defaultCountryCode)
	phoneB := NormalizePhone(b.PhoneNumber, d.defaultCountryCode)
	if phoneA == "" || phoneB == "" {
		return
	}

	d.sms(ctx, a.PhoneNumber, confirmedBody(a.DisplayName, b.DisplayName, phoneB, m))
	d.sms(ctx, b.PhoneNumber, confirmedBody(b.DisplayName, a.DisplayName, phoneA, m))
}

func (d *Dispatcher) record(ctx context.Context, n models.Notification) {
	if err := d.db.InsertNotification(ctx, n); err != nil {
		log.Printf("notify: failed to record notification for user %s: %v", n.UserID, err)
	}
}

func (d *Dispatcher) sms(ctx context.Context, phone, body string) {
	if !d.smsEnabled() {
		return
	}

	to := NormalizePhone(phone, d.defaultCountryCode)
	if to == "" {
		return
	}

	err := d.db.InsertSMS(ctx, models.SMSMessage{
		ID:        uuid.New().String(),
		To:        to,
		Body:      body,
		Status:    models.SMSPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("notify: failed to enqueue sms: %v", err)
	}
}

func matchCreatedBody(partnerName string, m models.Match) string {
	interests := "no shared interests yet"
	if len(m.CommonInterests) > 0 {
		interests = "shared interests: " + strings.Join(m.CommonInterests, ", ")
	}
	return fmt.Sprintf("You're paired with %s for %s (%s, %.0f%% compatible).",
		partnerName, m.CuisinePreference, interests, m.Compatibility)
}

func confirmedBody(recipientName, partnerName, partnerPhone string, m models.Match) string {
	interests := "See where the conversation goes!"
	if len(m.CommonInterests) > 0 {
		interests = "You both like " + strings.Join(m.CommonInterests, ", ") + "."
	}
	return fmt.Sprintf("%s, your match %s is confirmed! Reach them at +%s. %s Cuisine pick: %s.",
		recipientName, partnerName, partnerPhone, interests, m.CuisinePreference)
}
