package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type sent struct {
	topic string
	key   string
	event any
	async bool
}

type mockPublisher struct {
	err  error
	sent []sent
}

func (m *mockPublisher) PublishWithKey(ctx context.Context, topic, key string, event any) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sent{topic: topic, key: key, event: event})
	return nil
}

func (m *mockPublisher) PublishAsync(ctx context.Context, topic string, event any) {
	m.sent = append(m.sent, sent{topic: topic, event: event, async: true})
}

func command(additional map[string]any) domain.RegistrationCommand {
	return domain.NewRegistrationCommand(domain.RegistrationParams{
		Email:          "Grace@Example.com",
		Password:       "password123",
		FirstName:      "Grace",
		LastName:       "Hopper",
		PhoneNumber:    "+1 555 0100",
		AdditionalData: additional,
	})
}

func TestNewHooks(t *testing.T) {
	for _, name := range []string{"customer", "Patient", " student "} {
		hooks, err := NewHooks(name, &mockPublisher{}, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, hooks.ProfileType())
	}

	_, err := NewHooks("robot", &mockPublisher{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer, patient, student")
}

func TestBuildUserAndMetadata(t *testing.T) {
	hooks := NewCustomerHooks(&mockPublisher{}, nil)

	user, err := hooks.BuildUser(command(nil), "idp|7")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "grace@example.com", user.Username)
	assert.Equal(t, "idp|7", user.ExternalID)
	assert.Equal(t, domain.UserStatusPending, user.Status)
	assert.Equal(t, domain.ProfileTypeCustomer, user.UserType)

	named, err := hooks.BuildUser(command(map[string]any{domain.AttrUsername: "amazing-grace"}), "idp|8")
	require.NoError(t, err)
	assert.Equal(t, "amazing-grace", named.Username)

	metadata := hooks.BuildMetadata(command(nil))
	assert.Equal(t, "customer", metadata["profile_type"])
	assert.Equal(t, "+1 555 0100", metadata["phone_number"])
	_, hasPassword := metadata["password"]
	assert.False(t, hasPassword)
}

func TestCustomerHooks(t *testing.T) {
	pub := &mockPublisher{}
	hooks := NewCustomerHooks(pub, nil)

	err := hooks.Validate(command(map[string]any{domain.AttrMarketingOptIn: "yes"}))
	require.ErrorIs(t, err, domain.ErrInvalid)
	require.NoError(t, hooks.Validate(command(map[string]any{domain.AttrMarketingOptIn: true})))
	require.NoError(t, hooks.Validate(command(nil)))

	cmd := command(map[string]any{domain.AttrMarketingOptIn: true})
	user, _ := hooks.BuildUser(cmd, "idp|1")
	profile, err := hooks.BuildProfile(cmd, user)
	require.NoError(t, err)
	assert.Equal(t, user.ID, profile.UserID)
	assert.True(t, profile.HasPermission("orders:create"))
	assert.Equal(t, "true", profile.Attributes[domain.AttrMarketingOptIn])

	require.NoError(t, hooks.PostRegister(context.Background(), user, profile))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, domain.CustomerOnboardingTopic, pub.sent[0].topic)
	assert.Equal(t, profile.ID, pub.sent[0].key)
	onboarding := pub.sent[0].event.(CustomerOnboarding)
	assert.True(t, onboarding.MarketingOptIn)
	assert.Equal(t, profile.Identifier(), onboarding.CustomerNumber)

	pub.err = errors.New("broker down")
	assert.Error(t, hooks.PostRegister(context.Background(), user, profile))
}

func TestPatientHooks(t *testing.T) {
	pub := &mockPublisher{}
	hooks := NewPatientHooks(pub, nil)

	cases := map[string]map[string]any{
		"missing":   nil,
		"malformed": {domain.AttrDateOfBirth: "01/02/1990"},
		"future":    {domain.AttrDateOfBirth: "2999-01-01"},
	}
	for name, additional := range cases {
		t.Run(name, func(t *testing.T) {
			err := hooks.Validate(command(additional))
			var verr domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, domain.AttrDateOfBirth, verr.Field)
		})
	}

	cmd := command(map[string]any{domain.AttrDateOfBirth: "1990-02-01", domain.AttrMedicalRecordNumber: "mrn-9"})
	require.NoError(t, hooks.Validate(cmd))
	assert.Equal(t, "1990-02-01", hooks.BuildMetadata(cmd)["date_of_birth"])

	user, _ := hooks.BuildUser(cmd, "idp|1")
	profile, err := hooks.BuildProfile(cmd, user)
	require.NoError(t, err)
	assert.Equal(t, "PAT-MRN-9", profile.Identifier())

	require.NoError(t, hooks.PostRegister(context.Background(), user, profile))
	require.Len(t, pub.sent, 1)
	assert.True(t, pub.sent[0].async)
	assert.Equal(t, domain.PatientProvisioningTopic, pub.sent[0].topic)

	cause := domain.NewRegistrationError(domain.KindPostRegistration, domain.StepPostRegister, errors.New("hook timed out"))
	require.NoError(t, hooks.Cleanup(context.Background(), cmd, cause))
	require.Len(t, pub.sent, 2)
	assert.Equal(t, domain.PatientProvisioningCancelledTopic, pub.sent[1].topic)
	assert.Equal(t, "hook timed out", pub.sent[1].event.(PatientProvisioningCancelled).Reason)
}

func TestPatientCleanupBeforeProvisioning(t *testing.T) {
	pub := &mockPublisher{}
	hooks := NewPatientHooks(pub, nil)
	cmd := command(map[string]any{domain.AttrDateOfBirth: "1990-02-01"})

	causes := []error{
		domain.NewRegistrationError(domain.KindExternalProvider, domain.StepCreateIdentity, errors.New("idp down")),
		domain.NewRegistrationError(domain.KindPersistence, domain.StepCreateUser, errors.New("db down")),
		domain.NewRegistrationError(domain.KindPersistence, domain.StepCreateProfile, errors.New("constraint violated")),
		errors.New("unknown"),
		nil,
	}
	for _, cause := range causes {
		require.NoError(t, hooks.Cleanup(context.Background(), cmd, cause))
	}
	assert.Empty(t, pub.sent)
}

func TestStudentHooks(t *testing.T) {
	hooks := NewStudentHooks(nil)

	err := hooks.Validate(command(map[string]any{domain.AttrStudentNumber: "s-1"}))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.AttrInstitution, verr.Field)

	cmd := command(map[string]any{domain.AttrStudentNumber: "s-1", domain.AttrInstitution: "MIT"})
	require.NoError(t, hooks.Validate(cmd))

	user, _ := hooks.BuildUser(cmd, "idp|1")
	profile, err := hooks.BuildProfile(cmd, user)
	require.NoError(t, err)
	assert.Equal(t, "S-1", profile.Attributes[domain.AttrStudentNumber])
	assert.True(t, profile.RequiresVerification())
	assert.NoError(t, hooks.PostRegister(context.Background(), user, profile))
	assert.NoError(t, hooks.Cleanup(context.Background(), cmd, nil))
}
