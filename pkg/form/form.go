// Package form validates the sign-in, sign-up and phone forms.
//
// Each form's Validate returns nil or Errors, a field-to-message map whose
// messages are shown next to the corresponding inputs.
package form

import (
	"errors"
	"sort"
	"strings"
)

// Messages shown to users.
const (
	MsgEmailRequired    = "Please enter email"
	MsgEmailInvalid     = "Please enter valid email"
	MsgPasswordRequired = "Please enter password"
	MsgPasswordShort    = "Password must be at least 6 characters"
	MsgNameRequired     = "Please enter name"
	MsgPhoneRequired    = "Please enter Phone Number"
	MsgPhoneInvalid     = "Please enter valid Phone Number"
	MsgCodeRequired     = "Please enter verification code"
	MsgCodeInvalid      = "Verification code must be 6 digits"

	// MsgSignInFailed replaces provider errors on the sign-in form.
	MsgSignInFailed = "An error occurred"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// Errors maps field names to their first validation message.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e[f]
	}
	return strings.Join(parts, "; ")
}

// Check runs validators against value in order and records the first
// failure under field.
func (e Errors) Check(field, value string, validators ...Validator) {
	if _, done := e[field]; done {
		return
	}
	for _, v := range validators {
		if err := v.Validate(value); err != nil {
			var ve ValidationError
			if errors.As(err, &ve) {
				e[field] = ve.Message
			} else {
				e[field] = err.Error()
			}
			return
		}
	}
}

// Err returns e as an error, or nil when it is empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// FieldErrors extracts Errors from err.
func FieldErrors(err error) (Errors, bool) {
	var fe Errors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Login is the email sign-in form.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks both fields independently, so the user sees every
// problem at once.
func (f Login) Validate() error {
	errs := Errors{}
	errs.Check("password", f.Password, Required(MsgPasswordRequired))
	errs.Check("email", f.Email, Required(MsgEmailRequired), Email(MsgEmailInvalid))
	return errs.Err()
}

// Signup is the email sign-up form.
type Signup struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (f Signup) Validate() error {
	errs := Errors{}
	errs.Check("email", f.Email, Required(MsgEmailRequired), Email(MsgEmailInvalid))
	errs.Check("password", f.Password,
		Required(MsgPasswordRequired),
		MinLength(MinPasswordLength, MsgPasswordShort),
	)
	errs.Check("name", f.Name, Required(MsgNameRequired))
	return errs.Err()
}

// PhoneNumber is the phone sign-in form. CountryCode is optional and is
// prefixed to Number when present.
type PhoneNumber struct {
	CountryCode string `json:"countryCode,omitempty"`
	Number      string `json:"number"`
}

func (f PhoneNumber) Validate() error {
	errs := Errors{}
	errs.Check("number", f.Number, Required(MsgPhoneRequired), Phone(MsgPhoneInvalid))
	if f.CountryCode != "" {
		errs.Check("countryCode", f.CountryCode, Pattern(`^\+?[0-9]{1,4}$`, MsgPhoneInvalid))
	}
	return errs.Err()
}

// Full returns the number in the form sent to the provider.
func (f PhoneNumber) Full() string {
	number := strings.TrimSpace(f.Number)
	code := strings.TrimPrefix(strings.TrimSpace(f.CountryCode), "+")
	if code == "" {
		return number
	}
	return "+" + code + number
}

// VerifyCode is the phone verification code form.
type VerifyCode struct {
	VerificationID string `json:"verificationId"`
	Code           string `json:"code"`
}

func (f VerifyCode) Validate() error {
	errs := Errors{}
	errs.Check("verificationId", f.VerificationID, Required(""))
	errs.Check("code", f.Code, Required(MsgCodeRequired), Digits(6, MsgCodeInvalid))
	return errs.Err()
}
