package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

// AccountUsecase manages accounts after registration.
type AccountUsecase struct {
	users     UserRepository
	profiles  ProfileRepository
	tx        TxManager
	directory IdentityDirectory
	logger    *zap.Logger
	now       func() time.Time
}

func NewAccountUsecase(
	users UserRepository,
	profiles ProfileRepository,
	tx TxManager,
	directory IdentityDirectory,
	logger *zap.Logger,
) *AccountUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountUsecase{
		users:     users,
		profiles:  profiles,
		tx:        tx,
		directory: directory,
		logger:    logger.With(zap.String("module", "account")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AccountUsecase) Get(ctx context.Context, userID string) (domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Account.Usecase.Get")
	defer span.End()

	user, err := uc.users.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Account{}, err
	}
	profile, err := uc.profiles.GetByUserID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Account{}, err
	}
	return domain.NewAccount(user, profile), nil
}

// VerifyProfile marks the profile of userID as verified by actor.
func (uc *AccountUsecase) VerifyProfile(ctx context.Context, userID, actor string) (domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Account.Usecase.VerifyProfile")
	defer span.End()
	span.SetAttributes(attribute.String("UserId", userID))

	var account domain.Account
	err := uc.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := uc.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		profile, err := uc.profiles.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if err := profile.Verify(actor, uc.now()); err != nil {
			return err
		}
		if err := uc.profiles.Update(ctx, &profile); err != nil {
			return err
		}
		account = domain.NewAccount(user, profile)
		return nil
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "Account.Usecase.VerifyProfile failed"))
		return domain.Account{}, err
	}

	uc.logger.Info("profile verified", zap.String("userId", userID), zap.String("actor", actor))
	return account, nil
}

// ChangeStatus moves the user to status. Activation is refused while the
// profile variant requires verification and the profile is unverified.
func (uc *AccountUsecase) ChangeStatus(ctx context.Context, userID string, status domain.UserStatus) (domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Account.Usecase.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("UserId", userID), attribute.String("Status", string(status)))

	var account domain.Account
	err := uc.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := uc.users.Get(ctx, userID)
		if err != nil {
			return err
		}
		profile, err := uc.profiles.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if status == domain.UserStatusActive && profile.RequiresVerification() && !profile.Verified {
			return domain.ErrVerificationRequired
		}
		if err := user.TransitionTo(status, uc.now()); err != nil {
			return err
		}
		if err := uc.users.Update(ctx, &user); err != nil {
			return err
		}
		account = domain.NewAccount(user, profile)
		return nil
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "Account.Usecase.ChangeStatus failed"))
		return domain.Account{}, err
	}

	uc.logger.Info("user status changed", zap.String("userId", userID), zap.String("status", string(status)))
	return account, nil
}

// SyncEmailVerification copies the email verification state kept by the
// identity provider onto the local user.
func (uc *AccountUsecase) SyncEmailVerification(ctx context.Context, userID string) (domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Account.Usecase.SyncEmailVerification")
	defer span.End()

	user, err := uc.users.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Account{}, err
	}

	verified, err := uc.directory.IsEmailVerified(ctx, user.ExternalID)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Account.Usecase.SyncEmailVerification: uc.directory.IsEmailVerified failed"))
		return domain.Account{}, err
	}

	if verified != user.EmailVerified {
		user.EmailVerified = verified
		user.UpdatedAt = uc.now()
		if err := uc.users.Update(ctx, &user); err != nil {
			span.RecordError(err)
			return domain.Account{}, err
		}
	}

	profile, err := uc.profiles.GetByUserID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Account{}, err
	}
	return domain.NewAccount(user, profile), nil
}

// ConfirmEmail marks the email as verified at the identity provider and
// locally.
func (uc *AccountUsecase) ConfirmEmail(ctx context.Context, userID string) (domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Account.Usecase.ConfirmEmail")
	defer span.End()

	user, err := uc.users.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.Account{}, err
	}
	if err := uc.directory.VerifyEmail(ctx, user.ExternalID); err != nil {
		span.RecordError(errors.Wrap(err, "Account.Usecase.ConfirmEmail: uc.directory.VerifyEmail failed"))
		return domain.Account{}, err
	}
	return uc.SyncEmailVerification(ctx, userID)
}
