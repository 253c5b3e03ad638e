package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

// translate maps gorm errors onto domain errors.
func translate(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFoundError{Resource: resource}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ConflictError{Resource: resource}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return domain.NotFoundError{Resource: "user"}
	default:
		return err
	}
}
