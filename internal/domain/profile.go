package domain

import (
	"sort"
	"time"
)

// PermissionSet is an unordered set of permission names.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Slice returns the permissions sorted by name.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Profile holds the domain-specific part of an account. UserID is fixed at
// creation; Type selects the ProfileVariant.
type Profile struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Type        string            `json:"profileType"`
	Attributes  map[string]string `json:"attributes"`
	Permissions PermissionSet     `json:"-"`
	Verified    bool              `json:"verified"`
	VerifiedAt  *time.Time        `json:"verifiedAt,omitempty"`
	VerifiedBy  string            `json:"verifiedBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Version     int64             `json:"version"`
}

func (p *Profile) SetAttribute(key, value string) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}
	p.Attributes[key] = value
}

func (p Profile) Attribute(key string) (string, bool) {
	v, ok := p.Attributes[key]
	return v, ok
}

func (p *Profile) Grant(perms ...string) {
	if p.Permissions == nil {
		p.Permissions = make(PermissionSet, len(perms))
	}
	for _, perm := range perms {
		p.Permissions[perm] = struct{}{}
	}
}

func (p Profile) HasPermission(perm string) bool {
	_, ok := p.Permissions[perm]
	return ok
}

// Verify marks the profile as verified by actor.
func (p *Profile) Verify(actor string, at time.Time) error {
	if actor == "" {
		return ValidationError{Field: "actor", Rule: "Verification actor is required"}
	}
	if p.Verified {
		return ConflictError{Resource: "profile", Field: "verified"}
	}
	p.Verified = true
	p.VerifiedAt = &at
	p.VerifiedBy = actor
	p.UpdatedAt = at
	return nil
}

// Identifier derives the externally visible identifier of the profile from
// its variant. Unknown types yield the profile id.
func (p Profile) Identifier() string {
	variant, ok := LookupVariant(p.Type)
	if !ok {
		return p.ID
	}
	return variant.Identifier(p)
}

// RequiresVerification reports whether the owning user may only be activated
// after the profile has been verified.
func (p Profile) RequiresVerification() bool {
	variant, ok := LookupVariant(p.Type)
	if !ok {
		return true
	}
	return variant.RequiresVerification()
}
