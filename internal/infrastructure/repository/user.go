package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/database/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Status == "" {
		user.Status = domain.UserStatusPending
	}
	user.Version = 1
	model := userToModel(*user)
	if err := conn(ctx, r.db).Create(&model).Error; err != nil {
		return translate(err, "user")
	}
	user.CreatedAt = model.CDate
	user.UpdatedAt = model.MDate
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (domain.User, error) {
	var model models.User
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		return domain.User{}, translate(err, "user")
	}
	return userFromModel(model), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var model models.User
	err := conn(ctx, r.db).First(&model, "lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return domain.User{}, translate(err, "user")
	}
	return userFromModel(model), nil
}

// Update writes the mutable columns when the stored version matches.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	result := conn(ctx, r.db).
		Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]any{
			"username":       user.Username,
			"email":          user.Email,
			"first_name":     user.FirstName,
			"last_name":      user.LastName,
			"phone_number":   user.PhoneNumber,
			"status":         string(user.Status),
			"email_verified": user.EmailVerified,
			"phone_verified": user.PhoneVerified,
			"last_login":     user.LastLogin,
			"version":        gorm.Expr("version + 1"),
			"m_date":         now,
		})
	if result.Error != nil {
		return translate(result.Error, "user")
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, user.ID); err != nil {
			return err
		}
		return domain.ConflictError{Resource: "user", Field: "version"}
	}
	user.Version++
	user.UpdatedAt = now
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return translate(result.Error, "user")
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "user"}
	}
	return nil
}

func userToModel(u domain.User) models.User {
	return models.User{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		ExternalID:    u.ExternalID,
		UserType:      u.UserType,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		PhoneNumber:   u.PhoneNumber,
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		LastLogin:     u.LastLogin,
		Version:       u.Version,
		CDate:         u.CreatedAt,
	}
}

func userFromModel(m models.User) domain.User {
	return domain.User{
		ID:            m.ID,
		Username:      m.Username,
		Email:         m.Email,
		ExternalID:    m.ExternalID,
		UserType:      m.UserType,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		PhoneNumber:   m.PhoneNumber,
		Status:        domain.UserStatus(m.Status),
		EmailVerified: m.EmailVerified,
		PhoneVerified: m.PhoneVerified,
		LastLogin:     m.LastLogin,
		CreatedAt:     m.CDate,
		UpdatedAt:     m.MDate,
		Version:       m.Version,
	}
}
