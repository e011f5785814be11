package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Error is a semantic validation failure for a single field. It is distinct
// from request-shape (binding) failures, which are handled by ToDetails.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return e.Reason }

var emailCheck = validator.New()

// Name trims whitespace and returns the normalized name.
// Fails when the trimmed name is shorter than 2 characters or contains digits.
func Name(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < 2 {
		return "", &Error{Field: "name", Reason: "Name must be at least 2 characters long"}
	}
	for _, r := range name {
		if unicode.IsDigit(r) {
			return "", &Error{Field: "name", Reason: "Name cannot contain numbers"}
		}
	}
	return name, nil
}

// Email checks the address syntactically and returns its normalized form.
// Normalization lowercases the whole address; uniqueness comparisons use the
// normalized value everywhere, so the exact scheme only has to be stable.
func Email(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if err := emailCheck.Var(email, "required,email"); err != nil {
		return "", &Error{Field: "email", Reason: "Email is not a valid address"}
	}
	return strings.ToLower(email), nil
}
