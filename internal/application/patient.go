package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

const dateLayout = "2006-01-02"

type PatientProvisioning struct {
	UserID        string `json:"userId"`
	ProfileID     string `json:"profileId"`
	PatientNumber string `json:"patientNumber"`
	DateOfBirth   string `json:"dateOfBirth"`
}

type PatientProvisioningCancelled struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type PatientHooks struct {
	base
	publisher DownstreamPublisher
}

func NewPatientHooks(publisher DownstreamPublisher, logger *zap.Logger) *PatientHooks {
	return &PatientHooks{
		base:      newBase(domain.ProfileTypePatient, logger, "records:read:self", "appointments:create"),
		publisher: publisher,
	}
}

func (h *PatientHooks) Validate(cmd domain.RegistrationCommand) error {
	dob, err := required(cmd, domain.AttrDateOfBirth, "Date of birth is required")
	if err != nil {
		return err
	}
	born, err := time.Parse(dateLayout, dob)
	if err != nil {
		return domain.ValidationError{Field: domain.AttrDateOfBirth, Rule: "Date of birth must be formatted as YYYY-MM-DD"}
	}
	if born.After(h.now()) {
		return domain.ValidationError{Field: domain.AttrDateOfBirth, Rule: "Date of birth cannot be in the future"}
	}
	return nil
}

func (h *PatientHooks) BuildMetadata(cmd domain.RegistrationCommand) map[string]any {
	metadata := h.base.BuildMetadata(cmd)
	metadata["date_of_birth"] = cmd.AdditionalString(domain.AttrDateOfBirth)
	return metadata
}

func (h *PatientHooks) BuildProfile(cmd domain.RegistrationCommand, user *domain.User) (*domain.Profile, error) {
	p := h.newProfile(user)
	p.SetAttribute(domain.AttrDateOfBirth, cmd.AdditionalString(domain.AttrDateOfBirth))
	if mrn := cmd.AdditionalString(domain.AttrMedicalRecordNumber); mrn != "" {
		p.SetAttribute(domain.AttrMedicalRecordNumber, mrn)
	}
	return p, nil
}

// PostRegister requests record provisioning without waiting for the broker.
func (h *PatientHooks) PostRegister(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	h.publisher.PublishAsync(ctx, domain.PatientProvisioningTopic, PatientProvisioning{
		UserID:        user.ID,
		ProfileID:     profile.ID,
		PatientNumber: profile.Identifier(),
		DateOfBirth:   profile.Attributes[domain.AttrDateOfBirth],
	})
	return nil
}

// Cleanup cancels provisioning. Provisioning is only requested once
// PostRegister has run, so earlier failures have nothing to cancel.
func (h *PatientHooks) Cleanup(ctx context.Context, cmd domain.RegistrationCommand, cause error) error {
	var regErr *domain.RegistrationError
	if !errors.As(cause, &regErr) || regErr.Step != domain.StepPostRegister {
		return nil
	}
	reason := "registration aborted"
	if regErr.Err != nil {
		reason = regErr.Err.Error()
	}
	h.publisher.PublishAsync(ctx, domain.PatientProvisioningCancelledTopic, PatientProvisioningCancelled{
		Email:  cmd.Email(),
		Reason: reason,
	})
	return nil
}
