// Package application holds the per-domain registration hooks.
package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/usecase"
)

// DownstreamPublisher emits the events of post-registration hooks.
type DownstreamPublisher interface {
	PublishWithKey(ctx context.Context, topic, key string, event any) error
	PublishAsync(ctx context.Context, topic string, event any)
}

type Factory func(publisher DownstreamPublisher, logger *zap.Logger) usecase.DomainHooks

var factories = map[string]Factory{
	domain.ProfileTypeCustomer: func(p DownstreamPublisher, l *zap.Logger) usecase.DomainHooks { return NewCustomerHooks(p, l) },
	domain.ProfileTypePatient:  func(p DownstreamPublisher, l *zap.Logger) usecase.DomainHooks { return NewPatientHooks(p, l) },
	domain.ProfileTypeStudent:  func(p DownstreamPublisher, l *zap.Logger) usecase.DomainHooks { return NewStudentHooks(l) },
}

// NewHooks returns the hooks of the named domain.
func NewHooks(profileType string, publisher DownstreamPublisher, logger *zap.Logger) (usecase.DomainHooks, error) {
	factory, ok := factories[strings.ToLower(strings.TrimSpace(profileType))]
	if !ok {
		return nil, fmt.Errorf("unknown registration domain %q (known: %s)", profileType, strings.Join(Domains(), ", "))
	}
	return factory(publisher, logger), nil
}

func Domains() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// base implements the parts shared by every built-in domain.
type base struct {
	profileType string
	permissions []string
	logger      *zap.Logger
	now         func() time.Time
}

func newBase(profileType string, logger *zap.Logger, permissions ...string) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		profileType: profileType,
		permissions: permissions,
		logger:      logger.With(zap.String("module", "hooks"), zap.String("domain", profileType)),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (b base) ProfileType() string {
	return b.profileType
}

func (b base) BuildMetadata(cmd domain.RegistrationCommand) map[string]any {
	metadata := map[string]any{
		"profile_type": b.profileType,
		"first_name":   cmd.FirstName(),
		"last_name":    cmd.LastName(),
	}
	if cmd.PhoneNumber() != "" {
		metadata["phone_number"] = cmd.PhoneNumber()
	}
	return metadata
}

func (b base) BuildUser(cmd domain.RegistrationCommand, externalID string) (*domain.User, error) {
	email := strings.ToLower(cmd.Email())
	username := cmd.AdditionalString(domain.AttrUsername)
	if username == "" {
		username = email
	}
	now := b.now()
	return &domain.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		ExternalID:  externalID,
		UserType:    b.profileType,
		FirstName:   cmd.FirstName(),
		LastName:    cmd.LastName(),
		PhoneNumber: cmd.PhoneNumber(),
		Status:      domain.UserStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (b base) newProfile(user *domain.User) *domain.Profile {
	now := b.now()
	p := &domain.Profile{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Type:      b.profileType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Grant(b.permissions...)
	return p
}

func (b base) PostRegister(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	return nil
}

func (b base) Cleanup(ctx context.Context, cmd domain.RegistrationCommand, cause error) error {
	b.logger.Debug("nothing to clean up", zap.String("email", cmd.Email()))
	return nil
}

func required(cmd domain.RegistrationCommand, key, rule string) (string, error) {
	v := cmd.AdditionalString(key)
	if v == "" {
		return "", domain.ValidationError{Field: key, Rule: rule}
	}
	return v, nil
}
