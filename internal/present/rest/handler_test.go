package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/totegamma/concrnt-identity/internal/application"
	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/gateway"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/memory"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/messaging"
	"github.com/totegamma/concrnt-identity/internal/usecase"
)

// --- mocks ---

type recordingTransport struct {
	mu   sync.Mutex
	sent []messaging.Message
	fail error
}

func (t *recordingTransport) Send(ctx context.Context, msg messaging.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil && msg.Topic == domain.RegistrationTopic {
		return t.fail
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *recordingTransport) Close() error { return nil }

func (t *recordingTransport) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, m := range t.sent {
		out = append(out, m.Topic)
	}
	return out
}

type staticFeed struct {
	envelopes []messaging.Envelope
}

func (f *staticFeed) Subscribe(ctx context.Context, topic string, out chan<- messaging.Envelope) error {
	for _, env := range f.envelopes {
		if env.Topic != topic {
			continue
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type fixture struct {
	e         *echo.Echo
	store     *memory.Store
	idp       *gateway.MemoryIdentityProvider
	transport *recordingTransport
}

func newFixture(t *testing.T, profileType string, feed Feed) *fixture {
	t.Helper()
	store := memory.NewStore()
	idp := gateway.NewMemoryIdentityProvider(bcrypt.MinCost)
	transport := &recordingTransport{}
	publisher := messaging.NewPublisher(transport, zap.NewNop(), time.Second)
	t.Cleanup(func() { _ = publisher.Close() })

	hooks, err := application.NewHooks(profileType, publisher, zap.NewNop())
	require.NoError(t, err)

	registration := usecase.NewRegistrationUsecase(
		hooks, idp, store.Users(), store.Profiles(), store, publisher, zap.NewNop(),
		usecase.DefaultRegistrationOptions(),
	)
	account := usecase.NewAccountUsecase(store.Users(), store.Profiles(), store, idp, zap.NewNop())

	e := echo.New()
	NewHandler(registration, account, feed, "", zap.NewNop()).RegisterRoutes(e)
	return &fixture{e: e, store: store, idp: idp, transport: transport}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	f.e.ServeHTTP(res, req)
	return res
}

func patientRequest(email string) map[string]any {
	return map[string]any{
		"email":     email,
		"password":  "password1",
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"additionalData": map[string]any{
			domain.AttrDateOfBirth:         "1990-12-10",
			domain.AttrMedicalRecordNumber: "mrn-1",
		},
	}
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &v))
	return v
}

// --- tests ---

func TestRegisterAndActivate(t *testing.T) {
	f := newFixture(t, "patient", nil)

	res := f.do(http.MethodPost, "/api/v1/registrations", patientRequest("ada@example.com"))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	result := decode[domain.RegistrationResult](t, res)
	assert.True(t, result.Success)
	assert.Equal(t, "patient", result.ProfileType)

	res = f.do(http.MethodGet, "/api/v1/accounts/"+result.UserID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	account := decode[domain.Account](t, res)
	assert.Equal(t, "PAT-MRN-1", account.Identifier)
	assert.True(t, account.RequiresVerification)

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/status", statusRequest{Status: "active"})
	assert.Equal(t, http.StatusConflict, res.Code, "activation before verification")

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/verification", verifyRequest{Actor: "dr-house"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/status", statusRequest{Status: "active"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	account = decode[domain.Account](t, res)
	assert.Equal(t, domain.UserStatusActive, account.User.Status)

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/status", statusRequest{Status: "sleeping"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestChangeStatusRequiresStatus(t *testing.T) {
	f := newFixture(t, "customer", nil)

	res := f.do(http.MethodPost, "/api/v1/registrations", map[string]any{
		"email":    "sam@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	result := decode[domain.RegistrationResult](t, res)

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/status", statusRequest{Status: "  "})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "status is required", decode[map[string]any](t, res)["error"])
}

func TestRegisterValidationError(t *testing.T) {
	f := newFixture(t, "patient", nil)

	req := patientRequest("ada@example.com")
	req["password"] = "short"
	res := f.do(http.MethodPost, "/api/v1/registrations", req)
	require.Equal(t, http.StatusBadRequest, res.Code)

	body := decode[map[string]any](t, res)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "password", body["field"])
	assert.Empty(t, f.transport.topics())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, "patient", nil)

	res := f.do(http.MethodPost, "/api/v1/registrations", patientRequest("ada@example.com"))
	require.Equal(t, http.StatusCreated, res.Code)

	res = f.do(http.MethodPost, "/api/v1/registrations", patientRequest("ADA@example.com"))
	assert.Equal(t, http.StatusConflict, res.Code, res.Body.String())

	users, profiles := f.store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, profiles)
}

func TestRegisterPublishFailureReportsCommitted(t *testing.T) {
	f := newFixture(t, "customer", nil)
	f.transport.fail = errors.New("broker down")

	res := f.do(http.MethodPost, "/api/v1/registrations", map[string]any{
		"email":    "bob@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusInternalServerError, res.Code)

	body := decode[struct {
		Kind      string                     `json:"kind"`
		Committed *domain.RegistrationResult `json:"committed"`
	}](t, res)
	assert.Equal(t, "publish", body.Kind)
	require.NotNil(t, body.Committed)

	res = f.do(http.MethodGet, "/api/v1/accounts/"+body.Committed.UserID, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestEmailVerificationEndpoints(t *testing.T) {
	f := newFixture(t, "customer", nil)

	res := f.do(http.MethodPost, "/api/v1/registrations", map[string]any{
		"email":    "eve@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	result := decode[domain.RegistrationResult](t, res)

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/email-verification/sync", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.False(t, decode[domain.Account](t, res).User.EmailVerified)

	require.NoError(t, f.idp.VerifyEmail(context.Background(), result.ExternalID))
	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/email-verification/sync", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, decode[domain.Account](t, res).User.EmailVerified)

	res = f.do(http.MethodPost, "/api/v1/accounts/missing/email-verification/confirm", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t, "customer", nil)

	res := f.do(http.MethodPost, "/api/v1/registrations", map[string]any{
		"email":    "zoe@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	result := decode[domain.RegistrationResult](t, res)

	res = f.do(http.MethodPost, "/api/v1/accounts/"+result.UserID+"/email-verification/confirm", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, decode[domain.Account](t, res).User.EmailVerified)
}

func TestHealthAndMissingFeed(t *testing.T) {
	f := newFixture(t, "student", nil)

	res := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "student", decode[map[string]any](t, res)["domain"])

	res = f.do(http.MethodGet, "/realtime/registrations", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestRealtimeStreamsRegistrations(t *testing.T) {
	feed := &staticFeed{envelopes: []messaging.Envelope{
		{ID: "01A", Topic: "other-topic"},
		{ID: "01B", Topic: domain.RegistrationTopic, Payload: json.RawMessage(`{"userId":"u1"}`)},
	}}
	f := newFixture(t, "customer", feed)

	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/registrations"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env messaging.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, "01B", env.ID)
	assert.JSONEq(t, `{"userId":"u1"}`, string(env.Payload))
}
