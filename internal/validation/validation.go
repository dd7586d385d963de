package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"drop-match-api/internal/models"
)

var (
	uuidRegex   = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	regionRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	nonDigit    = regexp.MustCompile(`\D`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// SanitizeString strips control characters and trims whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}

// ValidateDecision accepts only the two decisions a participant may submit.
// "pending" is a storage state, never a valid input.
func ValidateDecision(decision string) (models.Decision, error) {
	switch models.Decision(SanitizeString(decision)) {
	case models.DecisionAccepted:
		return models.DecisionAccepted, nil
	case models.DecisionDeclined:
		return models.DecisionDeclined, nil
	default:
		return "", &ValidationError{
			Field:   "decision",
			Message: "must be 'accepted' or 'declined'",
		}
	}
}

func ValidatePriceRange(pr models.PriceRange, fieldName string) error {
	switch pr {
	case models.PriceCheap, models.PriceModerate, models.PriceExpensive, models.PriceLuxury:
		return nil
	}
	return &ValidationError{
		Field:   fieldName,
		Message: "must be one of $, $$, $$$, $$$$",
	}
}

func validateRegion(location, fieldName string) error {
	if location == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}
	if !regionRegex.MatchString(strings.ToLower(location)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a short region key (letters, digits, - or _)",
		}
	}
	return nil
}

func ValidateProfile(p models.Profile) error {
	if err := ValidateUUID(p.UserID, "user_id"); err != nil {
		return err
	}

	if SanitizeString(p.DisplayName) == "" {
		return &ValidationError{
			Field:   "display_name",
			Message: "is required",
		}
	}

	if err := ValidatePriceRange(p.PriceRange, "price_range"); err != nil {
		return err
	}

	if err := validateRegion(p.Location, "location"); err != nil {
		return err
	}

	if len(p.Interests) > 50 {
		return &ValidationError{
			Field:   "interests",
			Message: "cannot contain more than 50 entries",
		}
	}

	if len(p.CuisinePreferences) > 50 {
		return &ValidationError{
			Field:   "cuisine_preferences",
			Message: "cannot contain more than 50 entries",
		}
	}

	if p.PhoneNumber != "" {
		if err := ValidatePhone(p.PhoneNumber); err != nil {
			return err
		}
	}

	if p.PhoneNumber == "" && (p.PhoneNumberVerified || p.SMSNotificationsEnabled) {
		return &ValidationError{
			Field:   "phone_number",
			Message: "is required when phone flags are set",
		}
	}

	return nil
}

func ValidateDrop(d models.Drop) error {
	if err := ValidateUUID(d.ID, "id"); err != nil {
		return err
	}

	if SanitizeString(d.Title) == "" {
		return &ValidationError{
			Field:   "title",
			Message: "is required",
		}
	}

	if d.StartTime.IsZero() {
		return &ValidationError{
			Field:   "start_time",
			Message: "is required",
		}
	}

	if d.RegistrationDeadline.IsZero() {
		return &ValidationError{
			Field:   "registration_deadline",
			Message: "is required",
		}
	}

	if !d.RegistrationDeadline.Before(d.StartTime) {
		return &ValidationError{
			Field:   "registration_deadline",
			Message: "must be before start_time",
		}
	}

	if err := ValidatePriceRange(d.PriceRange, "price_range"); err != nil {
		return err
	}

	if err := validateRegion(d.Location, "location"); err != nil {
		return err
	}

	if d.MaxParticipants < 2 {
		return &ValidationError{
			Field:   "max_participants",
			Message: "must be at least 2",
		}
	}

	switch d.Status {
	case models.DropUpcoming, models.DropMatched, models.DropCompleted, models.DropCancelled:
	case "":
		// Defaulted by the store.
	default:
		return &ValidationError{
			Field:   "status",
			Message: "must be upcoming, matched, completed or cancelled",
		}
	}

	return nil
}

// ValidatePhone checks that a phone number has a plausible digit count after
// stripping formatting. Full E.164 validation belongs to the SMS worker.
func ValidatePhone(phone string) error {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) < 7 || len(digits) > 15 {
		return &ValidationError{
			Field:   "phone_number",
			Message: "must contain 7 to 15 digits",
		}
	}
	return nil
}
