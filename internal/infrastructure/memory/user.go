package memory

import (
	"context"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.s.lock(ctx)
	defer unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return domain.ConflictError{Resource: "user", Field: "id"}
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}

	now := r.s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Version = 1
	if user.Status == "" {
		user.Status = domain.UserStatusPending
	}
	r.s.users[user.ID] = copyUser(*user)
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (domain.User, error) {
	unlock := r.s.lock(ctx)
	defer unlock()

	user, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.NotFoundError{Resource: "user"}
	}
	return copyUser(user), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	unlock := r.s.lock(ctx)
	defer unlock()

	key := normalizeEmail(email)
	for _, user := range r.s.users {
		if normalizeEmail(user.Email) == key {
			return copyUser(user), nil
		}
	}
	return domain.User{}, domain.NotFoundError{Resource: "user"}
}

// Update writes user if its version matches the stored one. The external id
// is never changed.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.s.lock(ctx)
	defer unlock()

	stored, ok := r.s.users[user.ID]
	if !ok {
		return domain.NotFoundError{Resource: "user"}
	}
	if stored.Version != user.Version {
		return domain.ConflictError{Resource: "user", Field: "version"}
	}
	user.ExternalID = stored.ExternalID
	if err := r.checkUnique(user); err != nil {
		return err
	}

	user.CreatedAt = stored.CreatedAt
	user.Version = stored.Version + 1
	user.UpdatedAt = r.s.now()
	r.s.users[user.ID] = copyUser(*user)
	return nil
}

// Delete removes the user together with its profile.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	unlock := r.s.lock(ctx)
	defer unlock()

	if _, ok := r.s.users[id]; !ok {
		return domain.NotFoundError{Resource: "user"}
	}
	delete(r.s.users, id)
	for pid, p := range r.s.profiles {
		if p.UserID == id {
			delete(r.s.profiles, pid)
		}
	}
	return nil
}

func (r *UserRepository) checkUnique(user *domain.User) error {
	email := normalizeEmail(user.Email)
	for id, other := range r.s.users {
		if id == user.ID {
			continue
		}
		switch {
		case normalizeEmail(other.Email) == email:
			return domain.ConflictError{Resource: "user", Field: "email"}
		case other.Username == user.Username:
			return domain.ConflictError{Resource: "user", Field: "username"}
		case user.ExternalID != "" && other.ExternalID == user.ExternalID:
			return domain.ConflictError{Resource: "user", Field: "external_id"}
		}
	}
	return nil
}

func copyUser(u domain.User) domain.User {
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}
