package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the number has fewer than 7 or more than 15 digits
	ErrInvalidLength = errors.New("phone number must have between 7 and 15 digits")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and an optional leading +")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// phoneRegex matches an optional + followed by digits only
var phoneRegex = regexp.MustCompile(`^\+?\d+$`)

// separators are stripped before validation
var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// PhoneValidator handles passenger phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an international or local phone number.
// Accepts formats like +44 20 7946 0958, 077-123-4567 or (555) 123.4567.
// Returns the sanitized number and an error if invalid.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	digits := strings.TrimPrefix(sanitized, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", ErrInvalidLength
	}

	return sanitized, nil
}

// Sanitize removes common separators; 00 international prefixes become +
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = separators.Replace(strings.TrimSpace(phone))
	if strings.HasPrefix(phone, "00") && len(phone) > 2 {
		phone = "+" + phone[2:]
	}
	return phone
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
