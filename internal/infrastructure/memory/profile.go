package memory

import (
	"context"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type ProfileRepository struct {
	s *Store
}

func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.s.lock(ctx)
	defer unlock()

	if _, ok := r.s.users[profile.UserID]; !ok {
		return domain.NotFoundError{Resource: "user"}
	}
	if _, ok := r.s.profiles[profile.ID]; ok {
		return domain.ConflictError{Resource: "profile", Field: "id"}
	}
	for _, other := range r.s.profiles {
		if other.UserID == profile.UserID {
			return domain.ConflictError{Resource: "profile", Field: "user_id"}
		}
	}

	now := r.s.now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	profile.Version = 1
	r.s.profiles[profile.ID] = copyProfile(*profile)
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	unlock := r.s.lock(ctx)
	defer unlock()

	profile, ok := r.s.profiles[id]
	if !ok {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}
	return copyProfile(profile), nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (domain.Profile, error) {
	unlock := r.s.lock(ctx)
	defer unlock()

	for _, profile := range r.s.profiles {
		if profile.UserID == userID {
			return copyProfile(profile), nil
		}
	}
	return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
}

// Update writes profile if its version matches. The owning user and the
// profile type are never changed.
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.s.lock(ctx)
	defer unlock()

	stored, ok := r.s.profiles[profile.ID]
	if !ok {
		return domain.NotFoundError{Resource: "profile"}
	}
	if stored.Version != profile.Version {
		return domain.ConflictError{Resource: "profile", Field: "version"}
	}

	profile.UserID = stored.UserID
	profile.Type = stored.Type
	profile.CreatedAt = stored.CreatedAt
	profile.Version = stored.Version + 1
	profile.UpdatedAt = r.s.now()
	r.s.profiles[profile.ID] = copyProfile(*profile)
	return nil
}

func (r *ProfileRepository) DeleteByUserID(ctx context.Context, userID string) error {
	unlock := r.s.lock(ctx)
	defer unlock()

	for id, profile := range r.s.profiles {
		if profile.UserID == userID {
			delete(r.s.profiles, id)
			return nil
		}
	}
	return domain.NotFoundError{Resource: "profile"}
}

func copyProfile(p domain.Profile) domain.Profile {
	attrs := make(map[string]string, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	p.Attributes = attrs
	p.Permissions = domain.NewPermissionSet(p.Permissions.Slice()...)
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		p.VerifiedAt = &t
	}
	return p
}
