package domain

import (
	"fmt"
	"strings"
	"time"
)

type UserStatus string

const (
	UserStatusPending   UserStatus = "PENDING"
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

var userStatusTransitions = map[UserStatus][]UserStatus{
	UserStatusPending:   {UserStatusActive, UserStatusInactive, UserStatusDeleted},
	UserStatusActive:    {UserStatusInactive, UserStatusSuspended, UserStatusDeleted},
	UserStatusInactive:  {UserStatusActive, UserStatusDeleted},
	UserStatusSuspended: {UserStatusActive, UserStatusDeleted},
}

func ParseUserStatus(s string) (UserStatus, error) {
	status := UserStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case UserStatusPending, UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusDeleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown user status %q", s)
}

// CanTransition reports whether a user in status s may move to next.
func (s UserStatus) CanTransition(next UserStatus) bool {
	for _, allowed := range userStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// User is the local account record. ExternalID is assigned by the identity
// provider and is never reassigned after creation.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	ExternalID    string     `json:"externalId"`
	UserType      string     `json:"userType"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	PhoneNumber   string     `json:"phoneNumber,omitempty"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"emailVerified"`
	PhoneVerified bool       `json:"phoneVerified"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Version       int64      `json:"version"`
}

// TransitionTo moves the user to next, or returns a StatusTransitionError.
func (u *User) TransitionTo(next UserStatus, at time.Time) error {
	if !u.Status.CanTransition(next) {
		return StatusTransitionError{From: u.Status, To: next}
	}
	u.Status = next
	u.UpdatedAt = at
	return nil
}
