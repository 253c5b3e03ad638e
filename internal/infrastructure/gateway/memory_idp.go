package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type memoryAccount struct {
	account ProviderAccount
	hash    []byte
}

// MemoryIdentityProvider is an in-process identity provider for local
// development.
type MemoryIdentityProvider struct {
	mu       sync.Mutex
	seq      int
	cost     int
	accounts map[string]*memoryAccount
}

func NewMemoryIdentityProvider(cost int) *MemoryIdentityProvider {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &MemoryIdentityProvider{
		cost:     cost,
		accounts: make(map[string]*memoryAccount),
	}
}

func (m *MemoryIdentityProvider) CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(passwordKey(password), m.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	// Email uniqueness is owned by the local user table, as with the hosted
	// provider's per-connection settings.
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := fmt.Sprintf("local|%06d", m.seq)
	m.accounts[id] = &memoryAccount{
		account: ProviderAccount{ID: id, Email: email, Metadata: copyMetadata(metadata)},
		hash:    hash,
	}
	return id, nil
}

func (m *MemoryIdentityProvider) DeleteAccount(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, externalID)
	return nil
}

func (m *MemoryIdentityProvider) GetAccount(ctx context.Context, externalID string) (ProviderAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[externalID]
	if !ok {
		return ProviderAccount{}, &ProviderError{StatusCode: http.StatusNotFound}
	}
	account := a.account
	account.Metadata = copyMetadata(a.account.Metadata)
	return account, nil
}

func (m *MemoryIdentityProvider) UpdateAccount(ctx context.Context, externalID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[externalID]
	if !ok {
		return &ProviderError{StatusCode: http.StatusNotFound}
	}
	for k, v := range fields {
		switch k {
		case "email_verified":
			b, _ := v.(bool)
			a.account.EmailVerified = b
		case "blocked":
			b, _ := v.(bool)
			a.account.Blocked = b
		case "email":
			s, _ := v.(string)
			a.account.Email = s
		default:
			if a.account.Metadata == nil {
				a.account.Metadata = make(map[string]any)
			}
			a.account.Metadata[k] = v
		}
	}
	return nil
}

func (m *MemoryIdentityProvider) VerifyEmail(ctx context.Context, externalID string) error {
	return m.UpdateAccount(ctx, externalID, map[string]any{"email_verified": true})
}

func (m *MemoryIdentityProvider) IsEmailVerified(ctx context.Context, externalID string) (bool, error) {
	account, err := m.GetAccount(ctx, externalID)
	if err != nil {
		return false, err
	}
	return account.EmailVerified, nil
}

func (m *MemoryIdentityProvider) passwordMatches(externalID, password string) bool {
	m.mu.Lock()
	a, ok := m.accounts[externalID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, passwordKey(password)) == nil
}

// passwordKey digests the password so bcrypt never sees more than its
// 72 byte input limit.
func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
