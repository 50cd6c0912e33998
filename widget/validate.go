package widget

import (
	"regexp"
	"strings"
)

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the RFC-light rule shared with the server.
func ValidEmail(s string) bool {
	return len(s) <= 255 && emailRx.MatchString(s)
}

// Form field names, also the keys of the error map.
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldSubject = "subject"
	FieldMessage = "message"
)

// TicketForm holds the new-ticket fields as entered. Category and
// Priority are select inputs with no validation of their own.
type TicketForm struct {
	Name     string
	Email    string
	Subject  string
	Message  string
	Category string
	Priority string
}

// ValidateField checks one field, as on blur. Returns the inline error
// message, or "" when the value passes.
func (f *TicketForm) ValidateField(field string) string {
	switch field {
	case FieldName:
		v := strings.TrimSpace(f.Name)
		if len(v) < 2 || len(v) > 255 {
			return "Name must be between 2 and 255 characters"
		}
	case FieldEmail:
		if !ValidEmail(strings.TrimSpace(f.Email)) {
			return "Please enter a valid email address"
		}
	case FieldSubject:
		v := strings.TrimSpace(f.Subject)
		if len(v) < 3 || len(v) > 255 {
			return "Subject must be between 3 and 255 characters"
		}
	case FieldMessage:
		v := strings.TrimSpace(f.Message)
		if len(v) < 10 || len(v) > 5000 {
			return "Message must be between 10 and 5000 characters"
		}
	}
	return ""
}

// Validate checks every field, as on submit. The map is empty when the
// whole form passes.
func (f *TicketForm) Validate() map[string]string {
	errs := make(map[string]string)
	for _, field := range []string{FieldName, FieldEmail, FieldSubject, FieldMessage} {
		if msg := f.ValidateField(field); msg != "" {
			errs[field] = msg
		}
	}
	return errs
}
