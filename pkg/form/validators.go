package form

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator is an interface for form field validation.
type Validator interface {
	// Validate checks if the value is valid.
	// Returns nil if valid, or an error with a message if invalid.
	Validate(value string) error
}

// ValidatorFunc is a function that implements Validator.
type ValidatorFunc func(value string) error

func (f ValidatorFunc) Validate(value string) error {
	return f(value)
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// ----------------------------------------------------------------------------
// String Validators
// ----------------------------------------------------------------------------

// Required validates that the value is non-blank.
func Required(msg string) Validator {
	if msg == "" {
		msg = "This field is required"
	}
	return ValidatorFunc(func(value string) error {
		if strings.TrimSpace(value) == "" {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// MinLength validates that a string has at least n characters.
func MinLength(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("Must be at least %d characters", n)
	}
	return ValidatorFunc(func(value string) error {
		if value == "" {
			return nil // Let Required handle empty values
		}
		if len([]rune(value)) < n {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// Pattern validates that a string matches the given regular expression.
func Pattern(pattern string, msg string) Validator {
	re := regexp.MustCompile(pattern)
	if msg == "" {
		msg = "Invalid format"
	}
	return ValidatorFunc(func(value string) error {
		if value == "" {
			return nil
		}
		if !re.MatchString(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// emailPattern requires something@something.something without whitespace.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email validates that the value looks like an email address.
func Email(msg string) Validator {
	if msg == "" {
		msg = "Invalid email address"
	}
	return ValidatorFunc(func(value string) error {
		if value == "" {
			return nil
		}
		if !emailPattern.MatchString(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// phonePattern matches common formats: +1-234-567-8900, (234) 567-8900, 234.567.8900.
var phonePattern = regexp.MustCompile(`^[\+]?[(]?[0-9]{1,4}[)]?[-\s\.]?[(]?[0-9]{1,3}[)]?[-\s\.]?[0-9]{1,4}[-\s\.]?[0-9]{1,4}[-\s\.]?[0-9]{1,9}$`)

// Phone validates that the value is a phone number.
func Phone(msg string) Validator {
	if msg == "" {
		msg = "Invalid phone number"
	}
	return ValidatorFunc(func(value string) error {
		if value == "" {
			return nil
		}
		if !phonePattern.MatchString(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// Digits validates that the value is exactly n ASCII digits.
func Digits(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("Must be %d digits", n)
	}
	return ValidatorFunc(func(value string) error {
		if value == "" {
			return nil
		}
		if len(value) != n {
			return ValidationError{Message: msg}
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return ValidationError{Message: msg}
			}
		}
		return nil
	})
}
