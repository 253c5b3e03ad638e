package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

var tracer = otel.Tracer("usecase")

type RegistrationOptions struct {
	Topic               string
	ProviderTimeout     time.Duration
	PersistenceTimeout  time.Duration
	HookTimeout         time.Duration
	PublishTimeout      time.Duration
	CompensationTimeout time.Duration
}

func DefaultRegistrationOptions() RegistrationOptions {
	return RegistrationOptions{
		Topic:               domain.RegistrationTopic,
		ProviderTimeout:     10 * time.Second,
		PersistenceTimeout:  10 * time.Second,
		HookTimeout:         10 * time.Second,
		PublishTimeout:      5 * time.Second,
		CompensationTimeout: 15 * time.Second,
	}
}

func (o RegistrationOptions) withDefaults() RegistrationOptions {
	d := DefaultRegistrationOptions()
	if o.Topic == "" {
		o.Topic = d.Topic
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = d.ProviderTimeout
	}
	if o.PersistenceTimeout <= 0 {
		o.PersistenceTimeout = d.PersistenceTimeout
	}
	if o.HookTimeout <= 0 {
		o.HookTimeout = d.HookTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = d.PublishTimeout
	}
	if o.CompensationTimeout <= 0 {
		o.CompensationTimeout = d.CompensationTimeout
	}
	return o
}

// RegistrationUsecase provisions an account at the identity provider, stores
// the local user and profile, runs the domain post-registration hook and
// announces the registration. Failures before the announcement are
// compensated in reverse order.
//
// The usecase keeps no per-call state and may be shared between goroutines.
type RegistrationUsecase struct {
	hooks     DomainHooks
	idp       IdentityProvider
	users     UserRepository
	profiles  ProfileRepository
	tx        TxManager
	publisher EventPublisher
	logger    *zap.Logger
	opts      RegistrationOptions
}

func NewRegistrationUsecase(
	hooks DomainHooks,
	idp IdentityProvider,
	users UserRepository,
	profiles ProfileRepository,
	tx TxManager,
	publisher EventPublisher,
	logger *zap.Logger,
	opts RegistrationOptions,
) *RegistrationUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationUsecase{
		hooks:     hooks,
		idp:       idp,
		users:     users,
		profiles:  profiles,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With(zap.String("module", "registration")),
		opts:      opts.withDefaults(),
	}
}

func (uc *RegistrationUsecase) ProfileType() string {
	return uc.hooks.ProfileType()
}

// Execute runs the registration saga for cmd. Errors are always
// *domain.RegistrationError.
func (uc *RegistrationUsecase) Execute(ctx context.Context, cmd domain.RegistrationCommand) (*domain.RegistrationResult, error) {
	ctx, span := tracer.Start(ctx, "Registration.Usecase.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("ProfileType", uc.hooks.ProfileType()))

	logger := uc.logger.With(
		zap.String("profileType", uc.hooks.ProfileType()),
		zap.String("email", cmd.Email()),
	)

	if err := uc.validate(cmd); err != nil {
		logger.Info("registration rejected", zap.Error(err))
		return nil, fail(span, domain.NewRegistrationError(domain.KindValidation, domain.StepValidate, err))
	}

	// once side effects start the saga is no longer cancellable; each step
	// is bounded by its own timeout instead.
	ctx = context.WithoutCancel(ctx)
	comp := newCompensator(uc.opts.CompensationTimeout, logger)

	externalID, err := uc.createExternalIdentity(ctx, cmd)
	if err != nil {
		return nil, uc.abort(ctx, span, logger, cmd, comp,
			domain.NewRegistrationError(domain.KindExternalProvider, domain.StepCreateIdentity, err))
	}
	logger = logger.With(zap.String("externalId", externalID))
	comp.push("delete external identity", func(ctx context.Context) error {
		return uc.idp.DeleteAccount(ctx, externalID)
	})

	user, profile, step, err := uc.createLocalRecords(ctx, cmd, externalID, comp)
	if err != nil {
		return nil, uc.abort(ctx, span, logger, cmd, comp,
			domain.NewRegistrationError(domain.KindPersistence, step, err))
	}
	logger = logger.With(zap.String("userId", user.ID), zap.String("profileId", profile.ID))

	if err := uc.postRegister(ctx, user, profile); err != nil {
		return nil, uc.abort(ctx, span, logger, cmd, comp,
			domain.NewRegistrationError(domain.KindPostRegistration, domain.StepPostRegister, err))
	}

	result := domain.RegistrationResult{
		UserID:      user.ID,
		ProfileID:   profile.ID,
		ExternalID:  externalID,
		ProfileType: profile.Type,
		Success:     true,
	}

	if err := uc.publish(ctx, cmd, user, profile); err != nil {
		// user and profile stay committed
		committed := result
		committed.Success = false
		regErr := domain.NewRegistrationError(domain.KindPublish, domain.StepPublish, err)
		regErr.Committed = &committed
		logger.Error("registration committed but event was not published", zap.Error(err))
		return nil, fail(span, regErr)
	}

	span.SetAttributes(attribute.String("UserId", user.ID))
	logger.Info("registration completed")
	return &result, nil
}

func (uc *RegistrationUsecase) validate(cmd domain.RegistrationCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return uc.hooks.Validate(cmd)
}

func (uc *RegistrationUsecase) createExternalIdentity(ctx context.Context, cmd domain.RegistrationCommand) (string, error) {
	ctx, span := tracer.Start(ctx, "Registration.Usecase.CreateExternalIdentity")
	defer span.End()

	metadata := uc.hooks.BuildMetadata(cmd)

	ctx, cancel := context.WithTimeout(ctx, uc.opts.ProviderTimeout)
	defer cancel()

	externalID, err := uc.idp.CreateAccount(ctx, cmd.Email(), cmd.Password(), metadata)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Registration.Usecase.CreateExternalIdentity: uc.idp.CreateAccount failed"))
		return "", err
	}
	if externalID == "" {
		err := errors.New("identity provider returned an empty account id")
		span.RecordError(err)
		return "", err
	}
	return externalID, nil
}

// createLocalRecords stores the user and the profile in one transaction. The
// returned step tells which of the two failed.
func (uc *RegistrationUsecase) createLocalRecords(
	ctx context.Context,
	cmd domain.RegistrationCommand,
	externalID string,
	comp *compensator,
) (*domain.User, *domain.Profile, domain.Step, error) {
	ctx, span := tracer.Start(ctx, "Registration.Usecase.CreateLocalRecords")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, uc.opts.PersistenceTimeout)
	defer cancel()

	var user *domain.User
	var profile *domain.Profile
	step := domain.StepCreateUser

	err := uc.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := uc.hooks.BuildUser(cmd, externalID)
		if err != nil {
			return err
		}
		if err := uc.users.Create(ctx, u); err != nil {
			return err
		}
		user = u

		step = domain.StepCreateProfile
		p, err := uc.hooks.BuildProfile(cmd, u)
		if err != nil {
			return err
		}
		if err := uc.profiles.Create(ctx, p); err != nil {
			return err
		}
		profile = p
		return nil
	})

	if user != nil {
		userID := user.ID
		comp.push("remove local records", func(ctx context.Context) error {
			return uc.removeLocalRecords(ctx, userID)
		})
	}
	if err != nil {
		span.RecordError(errors.Wrapf(err, "Registration.Usecase.CreateLocalRecords: %s failed", step))
		return nil, nil, step, err
	}
	return user, profile, step, nil
}

func (uc *RegistrationUsecase) removeLocalRecords(ctx context.Context, userID string) error {
	return uc.tx.RunInTx(ctx, func(ctx context.Context) error {
		err := uc.profiles.DeleteByUserID(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return errors.Wrap(err, "delete profile")
		}
		err = uc.users.Delete(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return errors.Wrap(err, "delete user")
		}
		return nil
	})
}

func (uc *RegistrationUsecase) postRegister(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "Registration.Usecase.PostRegister")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, uc.opts.HookTimeout)
	defer cancel()

	if err := uc.hooks.PostRegister(ctx, user, profile); err != nil {
		span.RecordError(errors.Wrap(err, "Registration.Usecase.PostRegister: uc.hooks.PostRegister failed"))
		return err
	}
	return nil
}

func (uc *RegistrationUsecase) publish(ctx context.Context, cmd domain.RegistrationCommand, user *domain.User, profile *domain.Profile) error {
	ctx, span := tracer.Start(ctx, "Registration.Usecase.Publish")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, uc.opts.PublishTimeout)
	defer cancel()

	event := domain.RegistrationEvent{
		UserID:      user.ID,
		ProfileID:   profile.ID,
		ProfileType: profile.Type,
		Email:       cmd.Email(),
	}
	if err := uc.publisher.Publish(ctx, uc.opts.Topic, event); err != nil {
		span.RecordError(errors.Wrap(err, "Registration.Usecase.Publish: uc.publisher.Publish failed"))
		return err
	}
	return nil
}

// abort compensates everything recorded so far and returns regErr with the
// compensation failures attached.
func (uc *RegistrationUsecase) abort(
	ctx context.Context,
	span trace.Span,
	logger *zap.Logger,
	cmd domain.RegistrationCommand,
	comp *compensator,
	regErr *domain.RegistrationError,
) error {
	logger.Warn("registration failed",
		zap.String("step", string(regErr.Step)),
		zap.String("kind", string(regErr.Kind)),
		zap.Error(regErr.Err),
	)
	if comp.empty() {
		return fail(span, regErr)
	}

	// runs first: domain artifacts are the newest
	comp.push("domain cleanup", func(ctx context.Context) error {
		return uc.hooks.Cleanup(ctx, cmd, regErr)
	})
	regErr.Compensations = comp.run(ctx)
	if !regErr.Compensated() {
		logger.Error("registration left partial state", zap.Int("failedCompensations", len(regErr.Compensations)))
	}
	return fail(span, regErr)
}

func fail(span trace.Span, regErr *domain.RegistrationError) error {
	span.RecordError(regErr)
	span.SetAttributes(
		attribute.String("FailedStep", string(regErr.Step)),
		attribute.String("ErrorKind", string(regErr.Kind)),
	)
	return regErr
}
