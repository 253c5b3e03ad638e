package domain

// RegistrationResult describes a completed registration.
type RegistrationResult struct {
	UserID      string `json:"userId"`
	ProfileID   string `json:"profileId"`
	ExternalID  string `json:"externalId"`
	ProfileType string `json:"profileType"`
	Success     bool   `json:"success"`
}

// RegistrationEvent is announced on RegistrationTopic after a registration
// has been committed.
type RegistrationEvent struct {
	UserID      string `json:"userId"`
	ProfileID   string `json:"profileId"`
	ProfileType string `json:"profileType"`
	Email       string `json:"email"`
}

// Account is a user together with its profile.
type Account struct {
	User                 User     `json:"user"`
	Profile              Profile  `json:"profile"`
	Identifier           string   `json:"identifier"`
	Permissions          []string `json:"permissions"`
	RequiresVerification bool     `json:"requiresVerification"`
}

func NewAccount(user User, profile Profile) Account {
	return Account{
		User:                 user,
		Profile:              profile,
		Identifier:           profile.Identifier(),
		Permissions:          profile.Permissions.Slice(),
		RequiresVerification: profile.RequiresVerification(),
	}
}
