package application

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

// CustomerOnboarding is sent to the onboarding pipeline for every new customer.
type CustomerOnboarding struct {
	UserID         string `json:"userId"`
	ProfileID      string `json:"profileId"`
	CustomerNumber string `json:"customerNumber"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	MarketingOptIn bool   `json:"marketingOptIn"`
}

type CustomerHooks struct {
	base
	publisher DownstreamPublisher
}

func NewCustomerHooks(publisher DownstreamPublisher, logger *zap.Logger) *CustomerHooks {
	return &CustomerHooks{
		base:      newBase(domain.ProfileTypeCustomer, logger, "orders:read", "orders:create"),
		publisher: publisher,
	}
}

func (h *CustomerHooks) Validate(cmd domain.RegistrationCommand) error {
	if v, ok := cmd.Additional(domain.AttrMarketingOptIn); ok {
		if _, isBool := v.(bool); !isBool {
			return domain.ValidationError{Field: domain.AttrMarketingOptIn, Rule: "Marketing opt-in must be true or false"}
		}
	}
	return nil
}

func (h *CustomerHooks) BuildProfile(cmd domain.RegistrationCommand, user *domain.User) (*domain.Profile, error) {
	p := h.newProfile(user)
	p.SetAttribute(domain.AttrMarketingOptIn, strconv.FormatBool(marketingOptIn(cmd)))
	return p, nil
}

// PostRegister hands the customer to the onboarding pipeline, keyed by
// profile so all events of one customer stay ordered.
func (h *CustomerHooks) PostRegister(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	optIn, _ := strconv.ParseBool(profile.Attributes[domain.AttrMarketingOptIn])
	event := CustomerOnboarding{
		UserID:         user.ID,
		ProfileID:      profile.ID,
		CustomerNumber: profile.Identifier(),
		Email:          user.Email,
		FirstName:      user.FirstName,
		MarketingOptIn: optIn,
	}
	return h.publisher.PublishWithKey(ctx, domain.CustomerOnboardingTopic, profile.ID, event)
}

func marketingOptIn(cmd domain.RegistrationCommand) bool {
	v, _ := cmd.Additional(domain.AttrMarketingOptIn)
	b, _ := v.(bool)
	return b
}
