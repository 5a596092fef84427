package util

import (
	"crypto/rand"
	"html"
	"math/big"
	"os"
	"strings"
)

// RandomDigits returns a random numeric string of the given length.
// Leading zeros are allowed.
func RandomDigits(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// MaskEmail hides most of the local part of an email address.
// Three leading characters are kept when the local part is long enough,
// otherwise one.
func MaskEmail(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return address
	}
	local, domain := address[:at], address[at:]

	keep := 1
	if len(local) >= 3 {
		keep = 3
	}
	if keep > len(local) {
		keep = len(local)
	}

	return local[:keep] + strings.Repeat("*", len(local)-keep) + domain
}

// MaskPhone hides the middle of a phone number, keeping the country prefix,
// one or two leading digits and the last two digits visible.
func MaskPhone(countryPrefix, number string) string {
	if len(number) <= 2 {
		return countryPrefix + " " + number
	}

	keep := 1
	if len(number) >= 4 {
		keep = 2
	}

	hidden := len(number) - keep - 2
	if hidden < 0 {
		hidden = 0
	}

	return countryPrefix + " " + number[:keep] + strings.Repeat("*", hidden) + number[len(number)-2:]
}

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
