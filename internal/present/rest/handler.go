package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/messaging"
	"github.com/totegamma/concrnt-identity/internal/present/rest/presenter"
	"github.com/totegamma/concrnt-identity/internal/usecase"
)

// Feed streams published envelopes of a topic.
type Feed interface {
	Subscribe(ctx context.Context, topic string, out chan<- messaging.Envelope) error
}

type Handler struct {
	registration *usecase.RegistrationUsecase
	account      *usecase.AccountUsecase
	feed         Feed
	topic        string
	logger       *zap.Logger
}

// NewHandler builds the REST handler. feed may be nil, which disables the
// realtime endpoint.
func NewHandler(
	registration *usecase.RegistrationUsecase,
	account *usecase.AccountUsecase,
	feed Feed,
	topic string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = domain.RegistrationTopic
	}
	return &Handler{
		registration: registration,
		account:      account,
		feed:         feed,
		topic:        topic,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.handleHealth)
	e.POST("/api/v1/registrations", h.handleRegister)
	e.GET("/api/v1/accounts/:userID", h.handleGetAccount)
	e.POST("/api/v1/accounts/:userID/verification", h.handleVerify)
	e.POST("/api/v1/accounts/:userID/status", h.handleChangeStatus)
	e.POST("/api/v1/accounts/:userID/email-verification/sync", h.handleSyncEmail)
	e.POST("/api/v1/accounts/:userID/email-verification/confirm", h.handleConfirmEmail)
	e.GET("/realtime/registrations", h.handleRealtime)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{
		"status": "ok",
		"domain": h.registration.ProfileType(),
	})
}

type registerRequest struct {
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	PhoneNumber    string         `json:"phoneNumber"`
	AdditionalData map[string]any `json:"additionalData"`
}

func (h *Handler) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()

	var req registerRequest
	err := c.Bind(&req)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	cmd := domain.NewRegistrationCommand(domain.RegistrationParams{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		AdditionalData: req.AdditionalData,
	})

	result, err := h.registration.Execute(ctx, cmd)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, result)
}

func (h *Handler) handleGetAccount(c echo.Context) error {
	account, err := h.account.Get(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, account)
}

type verifyRequest struct {
	Actor string `json:"actor"`
}

func (h *Handler) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	account, err := h.account.VerifyProfile(c.Request().Context(), c.Param("userID"), strings.TrimSpace(req.Actor))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, account)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleChangeStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if strings.TrimSpace(req.Status) == "" {
		return presenter.BadRequestMessage(c, "status is required")
	}
	status, err := domain.ParseUserStatus(req.Status)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	account, err := h.account.ChangeStatus(c.Request().Context(), c.Param("userID"), status)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, account)
}

func (h *Handler) handleSyncEmail(c echo.Context) error {
	account, err := h.account.SyncEmailVerification(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, account)
}

func (h *Handler) handleConfirmEmail(c echo.Context) error {
	account, err := h.account.ConfirmEmail(c.Request().Context(), c.Param("userID"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, account)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.feed == nil {
		return presenter.NotFound(c, "realtime feed is not enabled")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err), zap.String("module", "socket"))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	output := make(chan messaging.Envelope)
	go func() {
		err := h.feed.Subscribe(ctx, h.topic, output)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("feed stopped", zap.Error(err), zap.String("module", "socket"))
		}
		cancel()
	}()

	// The client only sends heartbeats; a read error means it is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) &&
					(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
					return
				}
				h.logger.Debug("websocket closed", zap.Error(err), zap.String("module", "socket"))
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-output:
			if err := ws.WriteJSON(env); err != nil {
				h.logger.Error("error writing message", zap.Error(err), zap.String("module", "socket"))
				return nil
			}
		}
	}
}
