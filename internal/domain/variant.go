package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

const (
	ProfileTypeCustomer = "customer"
	ProfileTypePatient  = "patient"
	ProfileTypeStudent  = "student"
)

// ProfileVariant supplies the behavior that differs between profile types.
type ProfileVariant interface {
	Type() string
	Identifier(p Profile) string
	RequiresVerification() bool
}

var (
	variantsMu sync.RWMutex
	variants   = map[string]ProfileVariant{}
)

// RegisterVariant adds a profile variant to the registry, replacing any
// variant of the same type.
func RegisterVariant(v ProfileVariant) {
	variantsMu.Lock()
	defer variantsMu.Unlock()
	variants[v.Type()] = v
}

func LookupVariant(profileType string) (ProfileVariant, bool) {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	v, ok := variants[profileType]
	return v, ok
}

func init() {
	RegisterVariant(CustomerVariant{})
	RegisterVariant(PatientVariant{})
	RegisterVariant(StudentVariant{})
}

// shortHash renders the first 40 bits of the xxh3 digest of s.
func shortHash(s string) string {
	return fmt.Sprintf("%010X", xxh3.HashString(s)>>24)
}

type CustomerVariant struct{}

func (CustomerVariant) Type() string               { return ProfileTypeCustomer }
func (CustomerVariant) RequiresVerification() bool { return false }

func (CustomerVariant) Identifier(p Profile) string {
	return "CUS-" + shortHash(p.UserID)
}

type PatientVariant struct{}

func (PatientVariant) Type() string               { return ProfileTypePatient }
func (PatientVariant) RequiresVerification() bool { return true }

// Identifier prefers the medical record number when one was supplied.
func (PatientVariant) Identifier(p Profile) string {
	if mrn, ok := p.Attribute(AttrMedicalRecordNumber); ok && mrn != "" {
		return "PAT-" + strings.ToUpper(mrn)
	}
	return "PAT-" + shortHash(p.UserID)
}

type StudentVariant struct{}

func (StudentVariant) Type() string               { return ProfileTypeStudent }
func (StudentVariant) RequiresVerification() bool { return true }

func (StudentVariant) Identifier(p Profile) string {
	number, _ := p.Attribute(AttrStudentNumber)
	institution, _ := p.Attribute(AttrInstitution)
	if number == "" {
		return "STU-" + shortHash(p.UserID)
	}
	return "STU-" + shortHash(institution) + "-" + strings.ToUpper(number)
}
