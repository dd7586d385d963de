package notify

import (
	"regexp"
	"strings"
)

var nonDigit = regexp.MustCompile(`\D`)

// NormalizePhone reduces a phone number to bare digits with a country code,
// the form the SMS worker expects. Numbers without a recognizable country
// prefix get defaultCountryCode prepended after leading zeros are dropped.
func NormalizePhone(phone, defaultCountryCode string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return digits
	}

	if defaultCountryCode != "" && !strings.HasPrefix(digits, defaultCountryCode) {
		digits = strings.TrimLeft(digits, "0")
		if digits == "" {
			return ""
		}
		digits = defaultCountryCode + digits
	}

	return digits
}
