// Package logger holds log hygiene helpers. Recipient addresses are PII
// and must be redacted before they reach log output.
package logger

import "strings"

// RedactEmail masks the local part of an address for logging, keeping the
// first character and the domain: "jdoe@example.com" -> "j***@example.com".
// Inputs that don't look like an address are masked entirely.
func RedactEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
