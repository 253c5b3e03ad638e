package application

import (
	"strings"

	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type StudentHooks struct {
	base
}

func NewStudentHooks(logger *zap.Logger) *StudentHooks {
	return &StudentHooks{
		base: newBase(domain.ProfileTypeStudent, logger, "courses:read", "grades:read:self"),
	}
}

func (h *StudentHooks) Validate(cmd domain.RegistrationCommand) error {
	if _, err := required(cmd, domain.AttrStudentNumber, "Student number is required"); err != nil {
		return err
	}
	if _, err := required(cmd, domain.AttrInstitution, "Institution is required"); err != nil {
		return err
	}
	return nil
}

func (h *StudentHooks) BuildMetadata(cmd domain.RegistrationCommand) map[string]any {
	metadata := h.base.BuildMetadata(cmd)
	metadata["institution"] = cmd.AdditionalString(domain.AttrInstitution)
	return metadata
}

func (h *StudentHooks) BuildProfile(cmd domain.RegistrationCommand, user *domain.User) (*domain.Profile, error) {
	p := h.newProfile(user)
	p.SetAttribute(domain.AttrStudentNumber, strings.ToUpper(cmd.AdditionalString(domain.AttrStudentNumber)))
	p.SetAttribute(domain.AttrInstitution, cmd.AdditionalString(domain.AttrInstitution))
	return p, nil
}
