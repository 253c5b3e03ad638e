package domain

import (
	"strings"
	"unicode/utf8"
)

const MinPasswordLength = 8

// RegistrationParams is the raw input used to build a RegistrationCommand.
type RegistrationParams struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	PhoneNumber    string
	AdditionalData map[string]any
}

// RegistrationCommand is an immutable registration request.
type RegistrationCommand struct {
	email       string
	password    string
	firstName   string
	lastName    string
	phoneNumber string
	additional  map[string]any
}

func NewRegistrationCommand(p RegistrationParams) RegistrationCommand {
	additional := make(map[string]any, len(p.AdditionalData))
	for k, v := range p.AdditionalData {
		additional[k] = v
	}
	return RegistrationCommand{
		email:       strings.TrimSpace(p.Email),
		password:    p.Password,
		firstName:   strings.TrimSpace(p.FirstName),
		lastName:    strings.TrimSpace(p.LastName),
		phoneNumber: strings.TrimSpace(p.PhoneNumber),
		additional:  additional,
	}
}

func (c RegistrationCommand) Email() string       { return c.email }
func (c RegistrationCommand) Password() string    { return c.password }
func (c RegistrationCommand) FirstName() string   { return c.firstName }
func (c RegistrationCommand) LastName() string    { return c.lastName }
func (c RegistrationCommand) PhoneNumber() string { return c.phoneNumber }

// Additional returns a domain-specific field.
func (c RegistrationCommand) Additional(key string) (any, bool) {
	v, ok := c.additional[key]
	return v, ok
}

// AdditionalString returns a domain-specific field as a trimmed string.
// Missing or non-string values yield "".
func (c RegistrationCommand) AdditionalString(key string) string {
	v, ok := c.additional[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// AdditionalKeys lists the keys of the domain-specific fields.
func (c RegistrationCommand) AdditionalKeys() []string {
	keys := make([]string, 0, len(c.additional))
	for k := range c.additional {
		keys = append(keys, k)
	}
	return keys
}

// Validate applies the rules shared by every domain.
func (c RegistrationCommand) Validate() error {
	if c.email == "" {
		return ValidationError{Field: "email", Rule: "Email is required"}
	}
	if utf8.RuneCountInString(c.password) < MinPasswordLength {
		return ValidationError{Field: "password", Rule: "Password must be at least 8 characters"}
	}
	return nil
}
