package usecase

import (
	"context"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

// UserRepository defines storage operations for local users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Get(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
}

// ProfileRepository defines storage operations for profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	Get(ctx context.Context, id string) (domain.Profile, error)
	GetByUserID(ctx context.Context, userID string) (domain.Profile, error)
	Update(ctx context.Context, profile *domain.Profile) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// TxManager runs fn inside one storage transaction. Repositories called with
// the context passed to fn take part in that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentityProvider creates and removes accounts at the external identity provider.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (string, error)
	DeleteAccount(ctx context.Context, externalID string) error
}

// IdentityDirectory exposes the account state kept by the identity provider.
type IdentityDirectory interface {
	IsEmailVerified(ctx context.Context, externalID string) (bool, error)
	VerifyEmail(ctx context.Context, externalID string) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// DomainHooks is the per-domain part of a registration.
type DomainHooks interface {
	ProfileType() string
	Validate(cmd domain.RegistrationCommand) error
	BuildMetadata(cmd domain.RegistrationCommand) map[string]any
	BuildUser(cmd domain.RegistrationCommand, externalID string) (*domain.User, error)
	BuildProfile(cmd domain.RegistrationCommand, user *domain.User) (*domain.Profile, error)
	PostRegister(ctx context.Context, user *domain.User, profile *domain.Profile) error
	// Cleanup undoes domain side effects of a registration that is being
	// compensated. cause is the *domain.RegistrationError being returned, so
	// the failed step is available through errors.As.
	Cleanup(ctx context.Context, cmd domain.RegistrationCommand, cause error) error
}
