package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/database/models"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create stores the profile and its attributes.
func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	profile.Version = 1
	model := profileToModel(*profile)
	if err := conn(ctx, r.db).Omit("User").Create(&model).Error; err != nil {
		return translate(err, "profile")
	}
	profile.CreatedAt = model.CDate
	profile.UpdatedAt = model.MDate
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	var model models.Profile
	err := conn(ctx, r.db).Preload("Attributes").First(&model, "id = ?", id).Error
	if err != nil {
		return domain.Profile{}, translate(err, "profile")
	}
	return profileFromModel(model), nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (domain.Profile, error) {
	var model models.Profile
	err := conn(ctx, r.db).Preload("Attributes").First(&model, "user_id = ?", userID).Error
	if err != nil {
		return domain.Profile{}, translate(err, "profile")
	}
	return profileFromModel(model), nil
}

// Update writes verification state, permissions and attributes when the
// stored version matches. Owner and type are fixed.
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	now := time.Now().UTC()
	model := profileToModel(*profile)

	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Profile{}).
			Where("id = ? AND version = ?", profile.ID, profile.Version).
			Updates(map[string]any{
				"permissions": model.Permissions,
				"verified":    model.Verified,
				"verified_at": model.VerifiedAt,
				"verified_by": model.VerifiedBy,
				"version":     gorm.Expr("version + 1"),
				"m_date":      now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.NotFoundError{Resource: "profile"}
			}
			return domain.ConflictError{Resource: "profile", Field: "version"}
		}

		if err := tx.Where("profile_id = ?", profile.ID).Delete(&models.ProfileAttribute{}).Error; err != nil {
			return err
		}
		if len(model.Attributes) > 0 {
			if err := tx.Create(&model.Attributes).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err, "profile")
	}

	profile.Version++
	profile.UpdatedAt = now
	return nil
}

func (r *ProfileRepository) DeleteByUserID(ctx context.Context, userID string) error {
	result := conn(ctx, r.db).Where("user_id = ?", userID).Delete(&models.Profile{})
	if result.Error != nil {
		return translate(result.Error, "profile")
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "profile"}
	}
	return nil
}

func profileToModel(p domain.Profile) models.Profile {
	attrs := make([]models.ProfileAttribute, 0, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs = append(attrs, models.ProfileAttribute{ProfileID: p.ID, Key: k, Value: v})
	}
	return models.Profile{
		ID:          p.ID,
		UserID:      p.UserID,
		ProfileType: p.Type,
		Attributes:  attrs,
		Permissions: p.Permissions.Slice(),
		Verified:    p.Verified,
		VerifiedAt:  p.VerifiedAt,
		VerifiedBy:  p.VerifiedBy,
		Version:     p.Version,
		CDate:       p.CreatedAt,
	}
}

func profileFromModel(m models.Profile) domain.Profile {
	attrs := make(map[string]string, len(m.Attributes))
	for _, a := range m.Attributes {
		attrs[a.Key] = a.Value
	}
	return domain.Profile{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        m.ProfileType,
		Attributes:  attrs,
		Permissions: domain.NewPermissionSet(m.Permissions...),
		Verified:    m.Verified,
		VerifiedAt:  m.VerifiedAt,
		VerifiedBy:  m.VerifiedBy,
		CreatedAt:   m.CDate,
		UpdatedAt:   m.MDate,
		Version:     m.Version,
	}
}
