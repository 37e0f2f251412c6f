// Package lead defines the canonical lead record and the pure normalization
// step that turns raw chat input into it. CRM connectors map the canonical
// fields onto provider-specific field names.
package lead

import (
	"strings"

	"chatlead_backend/platform/phone"
	"chatlead_backend/platform/sanitize"
)

// Record is the canonical lead shape shared by every CRM connector.
// LastName is nil when the user gave a single-token name.
type Record struct {
	FirstName  string  `json:"firstName"`
	LastName   *string `json:"lastName,omitempty"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	ExternalID string  `json:"externalId,omitempty"`
}

// FullName joins first and last name for display.
func (r Record) FullName() string {
	if r.LastName == nil {
		return r.FirstName
	}
	if r.FirstName == "" {
		return *r.LastName
	}
	return r.FirstName + " " + *r.LastName
}

// Normalize turns raw name/email/phone input into a canonical Record.
// It is pure and idempotent: normalizing already-normalized output yields
// the same output.
//
// Name: HTML-stripped, trimmed and split on whitespace. A single token becomes the first
// name with no last name; with two or more tokens the final token is the
// last name and the preceding tokens, joined by single spaces, form the
// first name.
//
// Email: lower-cased and trimmed. Format validation is the caller's concern.
//
// Phone: every non-digit stripped. The result may be empty when the input
// carries no digits; callers treat that as invalid input.
func Normalize(name, email, phoneNumber string) Record {
	firstName, lastName := ParseFullName(sanitize.Text(name))

	return Record{
		FirstName: firstName,
		LastName:  lastName,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Phone:     phone.Digits(phoneNumber),
	}
}

// ParseFullName splits a free-form name into first name and optional last name.
func ParseFullName(fullName string) (string, *string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		last := parts[len(parts)-1]
		return strings.Join(parts[:len(parts)-1], " "), &last
	}
}
