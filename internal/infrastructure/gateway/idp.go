package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

var tracer = otel.Tracer("gateway")

const (
	defaultTimeout = 10 * time.Second
	accountTTL     = 30 * time.Second
)

type IdentityProviderConfig struct {
	BaseURL      string
	Connection   string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Audience     string
	Timeout      time.Duration
	UserAgent    string
}

// ProviderAccount is the account representation of the management API.
type ProviderAccount struct {
	ID            string         `json:"user_id"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Blocked       bool           `json:"blocked"`
	Metadata      map[string]any `json:"user_metadata,omitempty"`
}

// ProviderError is a non-2xx answer of the identity provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity provider returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	switch target.(type) {
	case domain.ConflictError:
		return e.StatusCode == http.StatusConflict
	case domain.NotFoundError:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IdentityProviderGateway talks to an identity provider's management API.
type IdentityProviderGateway struct {
	client     *http.Client
	base       http.RoundTripper
	cache      *cache.Cache
	baseURL    string
	connection string
	userAgent  string
}

func NewIdentityProviderGateway(ctx context.Context, conf IdentityProviderConfig) *IdentityProviderGateway {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if conf.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     conf.ClientID,
			ClientSecret: conf.ClientSecret,
			TokenURL:     conf.TokenURL,
		}
		if conf.Audience != "" {
			cc.EndpointParams = url.Values{"audience": {conf.Audience}}
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
		httpClient = cc.Client(tokenCtx)
		httpClient.Timeout = timeout
	}

	userAgent := conf.UserAgent
	if userAgent == "" {
		userAgent = "concrnt-identity"
	}

	g := &IdentityProviderGateway{
		client:     httpClient,
		base:       httpClient.Transport,
		cache:      cache.New(accountTTL, 2*accountTTL),
		baseURL:    strings.TrimRight(conf.BaseURL, "/"),
		connection: conf.Connection,
		userAgent:  userAgent,
	}
	if g.base == nil {
		g.base = http.DefaultTransport
	}
	httpClient.Transport = g
	return g
}

func (g *IdentityProviderGateway) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", g.userAgent)
	return g.base.RoundTrip(req)
}

type createAccountRequest struct {
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	Connection string         `json:"connection,omitempty"`
	Metadata   map[string]any `json:"user_metadata,omitempty"`
}

func (g *IdentityProviderGateway) CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "Gateway.IdentityProvider.CreateAccount")
	defer span.End()

	var account ProviderAccount
	_, err := g.do(ctx, http.MethodPost, "/api/v2/users", createAccountRequest{
		Email:      email,
		Password:   password,
		Connection: g.connection,
		Metadata:   metadata,
	}, &account)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if account.ID == "" {
		return "", fmt.Errorf("identity provider response has no user_id")
	}
	g.cache.Set(account.ID, account, cache.DefaultExpiration)
	return account.ID, nil
}

// DeleteAccount removes the account. Accounts that no longer exist are
// treated as deleted.
func (g *IdentityProviderGateway) DeleteAccount(ctx context.Context, externalID string) error {
	ctx, span := tracer.Start(ctx, "Gateway.IdentityProvider.DeleteAccount")
	defer span.End()

	g.cache.Delete(externalID)
	status, err := g.do(ctx, http.MethodDelete, accountPath(externalID), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (g *IdentityProviderGateway) GetAccount(ctx context.Context, externalID string) (ProviderAccount, error) {
	if cached, ok := g.cache.Get(externalID); ok {
		return cached.(ProviderAccount), nil
	}
	return g.fetchAccount(ctx, externalID)
}

func (g *IdentityProviderGateway) fetchAccount(ctx context.Context, externalID string) (ProviderAccount, error) {
	ctx, span := tracer.Start(ctx, "Gateway.IdentityProvider.GetAccount")
	defer span.End()

	var account ProviderAccount
	if _, err := g.do(ctx, http.MethodGet, accountPath(externalID), nil, &account); err != nil {
		span.RecordError(err)
		return ProviderAccount{}, err
	}
	g.cache.Set(externalID, account, cache.DefaultExpiration)
	return account, nil
}

func (g *IdentityProviderGateway) UpdateAccount(ctx context.Context, externalID string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Gateway.IdentityProvider.UpdateAccount")
	defer span.End()

	g.cache.Delete(externalID)
	if _, err := g.do(ctx, http.MethodPatch, accountPath(externalID), fields, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (g *IdentityProviderGateway) VerifyEmail(ctx context.Context, externalID string) error {
	return g.UpdateAccount(ctx, externalID, map[string]any{"email_verified": true})
}

// IsEmailVerified always asks the provider; the answer refreshes the cache.
func (g *IdentityProviderGateway) IsEmailVerified(ctx context.Context, externalID string) (bool, error) {
	account, err := g.fetchAccount(ctx, externalID)
	if err != nil {
		return false, err
	}
	return account.EmailVerified, nil
}

func (g *IdentityProviderGateway) do(ctx context.Context, method, path string, body, response any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if response != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func accountPath(externalID string) string {
	return "/api/v2/users/" + url.PathEscape(externalID)
}
