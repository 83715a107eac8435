package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventhub/entity"
	"eventhub/metrics"
	"eventhub/ticketing"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error          string        `json:"error"`
	Message        string        `json:"message"`
	Remaining      *int          `json:"remaining,omitempty"`
	SpotsRemaining *int          `json:"spots_remaining,omitempty"`
	UsedAt         *time.Time    `json:"used_at,omitempty"`
	Order          *entity.Order `json:"order,omitempty"`
}

func statusFor(kind ticketing.ErrorKind) int {
	switch kind {
	case ticketing.KindInsufficientInventory,
		ticketing.KindCapacityExceeded,
		ticketing.KindAlreadyUsed,
		ticketing.KindEventNotDraft,
		ticketing.KindEventNotOnSale:
		return http.StatusConflict
	case ticketing.KindWrongEvent, ticketing.KindPaymentNotConfirmed:
		return http.StatusUnprocessableEntity
	case ticketing.KindOrderNotFound, ticketing.KindEventNotFound, ticketing.KindTicketTypeNotFound:
		return http.StatusNotFound
	case ticketing.KindNotOrganizer:
		return http.StatusForbidden
	case ticketing.KindVerificationFailed:
		return http.StatusPaymentRequired
	case ticketing.KindVerificationPending:
		return http.StatusAccepted
	case ticketing.KindInvalidQuantity, ticketing.KindUnsupportedMethod, ticketing.KindVotingUnavailable:
		return http.StatusBadRequest
	case ticketing.KindPaymentInitiationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes flow errors as {"error": kind, "message": ...}. Anything
// else is a backend failure and is reported generically.
func respondError(c echo.Context, err error) error {
	var flowErr *ticketing.Error
	if !errors.As(err, &flowErr) {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: err,
		}
	}

	code := statusFor(flowErr.Kind)
	if code >= http.StatusInternalServerError {
		log.FromContext(c.Request().Context()).WithError(err).Warn("Request failed")
	}

	resp := errorResponse{
		Error:   string(flowErr.Kind),
		Message: flowErr.Message,
		UsedAt:  flowErr.UsedAt,
		Order:   flowErr.Order,
	}
	switch flowErr.Kind {
	case ticketing.KindInsufficientInventory:
		resp.Remaining = &flowErr.Remaining
	case ticketing.KindCapacityExceeded:
		resp.SpotsRemaining = &flowErr.SpotsRemaining
	}

	return c.JSON(code, resp)
}

func notFound(what string, err error) error {
	return &echo.HTTPError{
		Code:     http.StatusNotFound,
		Message:  what + " not found",
		Internal: err,
	}
}

func lookupError(what string, err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return notFound(what, err)
	}
	return &echo.HTTPError{
		Code:     http.StatusInternalServerError,
		Message:  "operation failed, retry",
		Internal: fmt.Errorf("getting %s: %w", what, err),
	}
}

// bind decodes and validates the request into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}
	if err := c.Validate(req); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  validationMessage(err),
			Internal: err,
		}
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	return fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag())
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	if kind, ok := ticketing.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}
