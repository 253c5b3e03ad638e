package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type errorResponse struct {
	Error     string                     `json:"error"`
	Kind      string                     `json:"kind,omitempty"`
	Step      string                     `json:"step,omitempty"`
	Field     string                     `json:"field,omitempty"`
	Committed *domain.RegistrationResult `json:"committed,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func Conflict(c echo.Context, err error) error {
	return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
}

func InternalError(c echo.Context, err error) error {
	c.Set("error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Error writes err with the status code of its domain class.
func Error(c echo.Context, err error) error {
	var regErr *domain.RegistrationError
	if errors.As(err, &regErr) {
		return registrationError(c, regErr)
	}

	var validation domain.ValidationError
	var transition domain.StatusTransitionError
	switch {
	case errors.As(err, &validation):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: validation.Rule, Field: validation.Field})
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrVerificationRequired),
		errors.As(err, &transition):
		return Conflict(c, err)
	default:
		return InternalError(c, err)
	}
}

func registrationError(c echo.Context, err *domain.RegistrationError) error {
	body := errorResponse{
		Error:     err.Error(),
		Kind:      string(err.Kind),
		Step:      string(err.Step),
		Committed: err.Committed,
	}

	status := http.StatusInternalServerError
	var validation domain.ValidationError
	switch {
	case err.Kind == domain.KindValidation:
		status = http.StatusBadRequest
		if errors.As(err.Err, &validation) {
			body.Field = validation.Field
		}
	case errors.Is(err.Err, domain.ErrConflict):
		status = http.StatusConflict
	case err.Kind == domain.KindExternalProvider:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		c.Set("error", err)
	}
	return c.JSON(status, body)
}
