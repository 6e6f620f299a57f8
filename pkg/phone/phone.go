// Package phone provides phone number normalization helpers shared by
// handlers and the SMS provider client.
package phone

import (
	"fmt"
	"math/rand"
	"strings"
)

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatE164 normalizes a phone number to E.164 (+15551234567).
// Bare 10-digit numbers are assumed North American.
func FormatE164(raw string) string {
	digits := stripNonDigits(raw)

	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

// Display formats a phone number for the UI: (555) 123-4567.
// International numbers outside NANPA are returned unchanged.
func Display(raw string) string {
	digits := stripNonDigits(raw)

	if len(digits) == 10 {
		return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:])
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
	}
	return raw
}

// ForProvider formats a number the way voip.ms expects: 10 bare digits
// with no country code.
func ForProvider(raw string) string {
	digits := stripNonDigits(raw)

	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return digits[1:]
	}
	return digits
}

var avatarColors = []string{
	"#4A90E2",
	"#E24A90",
	"#90E24A",
	"#E2904A",
	"#904AE2",
	"#4AE290",
	"#E2E24A",
	"#E24A4A",
}

// RandomAvatarColor picks a color for an auto-created contact avatar
func RandomAvatarColor() string {
	return avatarColors[rand.Intn(len(avatarColors))]
}
