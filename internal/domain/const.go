package domain

const RegistrationTopic = "registration-events"

const (
	CustomerOnboardingTopic           = "customer-onboarding"
	PatientProvisioningTopic          = "patient-provisioning"
	PatientProvisioningCancelledTopic = "patient-provisioning-cancelled"
)

// Additional data keys understood by the built-in domains.
const (
	AttrUsername            = "username"
	AttrMarketingOptIn      = "marketing_opt_in"
	AttrDateOfBirth         = "date_of_birth"
	AttrMedicalRecordNumber = "medical_record_number"
	AttrStudentNumber       = "student_number"
	AttrInstitution         = "institution"
)

// Step names a stage of the registration saga.
type Step string

const (
	StepValidate       Step = "validate"
	StepCreateIdentity Step = "create_external_identity"
	StepCreateUser     Step = "create_user"
	StepCreateProfile  Step = "create_profile"
	StepPostRegister   Step = "post_registration"
	StepPublish        Step = "publish_event"
)
