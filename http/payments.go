package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"eventhub/clients"
	"eventhub/entity"
	"eventhub/metrics"
	"eventhub/ticketing"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
)

const maxWebhookBytes = 64 << 10

type verifyPaymentQuery struct {
	Method    entity.PaymentMethod `query:"method" validate:"required"`
	Reference string               `query:"reference" validate:"required,max=100"`
	TxHash    string               `query:"tx_hash" validate:"omitempty,len=66,startswith=0x,hexadecimal"`
}

type verifyPaymentResponse struct {
	Reference string               `json:"reference"`
	Method    entity.PaymentMethod `json:"method"`
	Status    entity.PaymentStatus `json:"status"`
	Amount    entity.Money         `json:"amount"`
	Purpose   entity.PurposeKind   `json:"purpose"`
}

// VerifyPayment is where processors send the payer back after checkout. It is
// safe to call repeatedly for the same reference.
func (h handler) VerifyPayment(c echo.Context) error {
	var q verifyPaymentQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	start := time.Now()
	payment, err := h.confirmer.Confirm(c.Request().Context(), ticketing.VerifyRequest{
		Method:    q.Method,
		Reference: q.Reference,
		TxHash:    q.TxHash,
	})
	metrics.TrackVerification(string(q.Method), outcome(err), time.Since(start))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, verifyPaymentResponse{
		Reference: payment.Reference,
		Method:    payment.Method,
		Status:    payment.Status,
		Amount:    payment.Amount,
		Purpose:   payment.Purpose.Kind(),
	})
}

// StripeWebhook confirms checkout sessions Stripe reports as paid. Only
// backend failures are answered with an error status, so Stripe retries those
// and nothing else.
func (h handler) StripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to read request",
			Internal: err,
		}
	}

	completed, err := h.stripe.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if errors.Is(err, clients.ErrIgnoredWebhook) {
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "invalid webhook",
			Internal: err,
		}
	}

	ctx := c.Request().Context()
	logger := log.FromContext(ctx).WithField("payment_reference", completed.Reference)

	start := time.Now()
	_, err = h.confirmer.Confirm(ctx, ticketing.VerifyRequest{
		Method:    entity.PaymentMethodStripe,
		Reference: completed.Reference,
	})
	metrics.TrackVerification(string(entity.PaymentMethodStripe), outcome(err), time.Since(start))

	if _, isFlowErr := ticketing.KindOf(err); err != nil && !isFlowErr {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("confirming stripe checkout %s: %w", completed.ProviderReference, err),
		}
	}
	if err != nil {
		logger.WithError(err).Info("Stripe checkout not settled")
	}

	return c.NoContent(http.StatusOK)
}
