package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/totegamma/concrnt-identity/internal/config"
	"github.com/totegamma/concrnt-identity/internal/domain"
)

func TestBuildInMemoryService(t *testing.T) {
	conf := config.Default()
	conf.Registration.Domain = "student"
	conf.IdentityProvider.BcryptCost = bcrypt.MinCost

	c, err := Build(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Feed)
	assert.Equal(t, "student", c.Registration.ProfileType())

	cmd := domain.NewRegistrationCommand(domain.RegistrationParams{
		Email:    "grace@example.com",
		Password: "password1",
		AdditionalData: map[string]any{
			domain.AttrStudentNumber: "s-42",
			domain.AttrInstitution:   "Yale",
		},
	})
	result, err := c.Registration.Execute(context.Background(), cmd)
	require.NoError(t, err)

	account, err := c.Account.Get(context.Background(), result.UserID)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", account.User.Email)
	assert.True(t, account.RequiresVerification)
}

func TestBuildDefaultRejectsDuplicateEmail(t *testing.T) {
	c, err := Build(context.Background(), config.Default(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	params := domain.RegistrationParams{Email: "a@b.com", Password: "password1"}
	first, err := c.Registration.Execute(context.Background(), domain.NewRegistrationCommand(params))
	require.NoError(t, err)

	params.Email = "A@B.com"
	_, err = c.Registration.Execute(context.Background(), domain.NewRegistrationCommand(params))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, domain.ErrConflict)

	var regErr *domain.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, domain.StepCreateUser, regErr.Step)
	assert.True(t, regErr.Compensated())

	// The second external identity is rolled back, the first one is untouched.
	_, err = c.idp.IsEmailVerified(context.Background(), "local|000002")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.idp.IsEmailVerified(context.Background(), first.ExternalID)
	assert.NoError(t, err)

	account, err := c.Account.Get(context.Background(), first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", account.User.Email)
}

func TestBuildRejectsUnknownDomain(t *testing.T) {
	conf := config.Default()
	conf.Registration.Domain = "pirate"

	_, err := Build(context.Background(), conf, zap.NewNop())
	assert.Error(t, err)
}

func TestNewStoresRequiresConnection(t *testing.T) {
	_, err := NewStores(config.Database{Driver: "postgres"}, nil, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewTransport(config.Events{Driver: "redis"}, nil, zap.NewNop())
	assert.Error(t, err)
}
