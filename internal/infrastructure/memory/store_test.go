package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

func newUser(id, email string) *domain.User {
	return &domain.User{ID: id, Username: email, Email: email, ExternalID: "ext-" + id}
}

func TestUserUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	users := store.Users()

	require.NoError(t, users.Create(ctx, newUser("u1", "a@example.com")))

	dup := newUser("u2", "A@Example.com")
	dup.Username = "other"
	err := users.Create(ctx, dup)
	require.ErrorIs(t, err, domain.ErrConflict)
	var conflict domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)

	sameExt := newUser("u3", "c@example.com")
	sameExt.ExternalID = "ext-u1"
	require.ErrorIs(t, users.Create(ctx, sameExt), domain.ErrConflict)

	got, err := users.GetByEmail(ctx, "a@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, domain.UserStatusPending, got.Status)
	assert.EqualValues(t, 1, got.Version)
}

func TestUserUpdateKeepsExternalID(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()
	require.NoError(t, users.Create(ctx, newUser("u1", "a@example.com")))

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	u.ExternalID = "hijacked"
	u.FirstName = "Ann"
	require.NoError(t, users.Update(ctx, &u))
	assert.EqualValues(t, 2, u.Version)

	stored, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ext-u1", stored.ExternalID)
	assert.Equal(t, "Ann", stored.FirstName)

	stale := stored
	stale.Version = 1
	require.ErrorIs(t, users.Update(ctx, &stale), domain.ErrConflict)
}

func TestRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Users().Create(ctx, newUser("u1", "a@example.com")); err != nil {
			return err
		}
		return store.Profiles().Create(ctx, &domain.Profile{ID: "p1", UserID: "u1", Type: domain.ProfileTypeCustomer})
	})
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Users().Create(ctx, newUser("u2", "b@example.com")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	users, profiles := store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, profiles)
	_, err = store.Users().Get(ctx, "u2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProfileRequiresUserAndIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Profiles().Create(ctx, &domain.Profile{ID: "p1", UserID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Users().Create(ctx, newUser("u1", "a@example.com")))
	p := &domain.Profile{ID: "p1", UserID: "u1", Type: domain.ProfileTypeStudent}
	p.SetAttribute(domain.AttrStudentNumber, "s1")
	p.Grant("courses:read")
	require.NoError(t, store.Profiles().Create(ctx, p))
	require.ErrorIs(t, store.Profiles().Create(ctx, &domain.Profile{ID: "p2", UserID: "u1"}), domain.ErrConflict)

	// stored copies are isolated from the caller
	p.SetAttribute(domain.AttrStudentNumber, "changed")
	got, err := store.Profiles().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	v, _ := got.Attribute(domain.AttrStudentNumber)
	assert.Equal(t, "s1", v)
	assert.True(t, got.HasPermission("courses:read"))

	require.NoError(t, store.Users().Delete(ctx, "u1"))
	_, err = store.Profiles().Get(ctx, "p1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, store.Profiles().DeleteByUserID(ctx, "u1"), domain.ErrNotFound)
}
