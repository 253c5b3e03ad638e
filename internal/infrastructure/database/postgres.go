package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/totegamma/concrnt-identity/internal/infrastructure/database/models"
)

func NewPostgres(dsn string, zl *zap.Logger) (*gorm.DB, error) {
	writer := &zapio.Writer{Log: zl.With(zap.String("module", "gorm")), Level: zap.WarnLevel}
	gormLogger := logger.New(
		gormWriter{writer},
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	return db, err
}

func MigratePostgres(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.ProfileAttribute{},
	)
}

// gormWriter adapts a zapio.Writer to gorm's Printf based logger.
type gormWriter struct {
	w *zapio.Writer
}

func (g gormWriter) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(g.w, format+"\n", args...)
}
