package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type PaymentStore interface {
	Payment(ctx context.Context, reference string) (entity.Payment, error)
	// SettlePayment moves a pending or expired payment to succeeded and
	// applies its purpose. applied is false when the payment was already
	// settled. A ticket payment whose order is gone ends up refund_due.
	SettlePayment(ctx context.Context, reference, providerReference string, details json.RawMessage, at time.Time) (p entity.Payment, applied bool, err error)
	// FailPayment moves a pending payment to failed and releases whatever it
	// was holding.
	FailPayment(ctx context.Context, reference string, details json.RawMessage, at time.Time) (p entity.Payment, applied bool, err error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, method entity.PaymentMethod, providerReference string, expected entity.Money) (entity.Verification, error)
}

type VerifyRequest struct {
	Method    entity.PaymentMethod
	Reference string
	// TxHash identifies the ledger transfer for crypto payments.
	TxHash string
}

type Confirmer struct {
	store    PaymentStore
	verifier PaymentVerifier
}

func NewConfirmer(store PaymentStore, verifier PaymentVerifier) Confirmer {
	return Confirmer{
		store:    store,
		verifier: verifier,
	}
}

// Confirm settles a payment from the processor's verdict. Calling it again
// for a settled payment returns the recorded outcome without asking the
// processor and without re-applying side effects. Expired payments are still
// checked: money that arrives after the reservation ended is refunded.
func (c Confirmer) Confirm(ctx context.Context, req VerifyRequest) (entity.Payment, error) {
	payment, err := c.store.Payment(ctx, req.Reference)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Payment{}, verificationFailed("Unknown payment reference")
	}
	if err != nil {
		return entity.Payment{}, fmt.Errorf("getting payment: %w", err)
	}
	if payment.Method != req.Method {
		return entity.Payment{}, verificationFailed("Payment method does not match")
	}

	if !payment.Status.Verifiable() {
		return settledOutcome(payment)
	}

	providerRef, err := providerReference(payment, req)
	if err != nil {
		return entity.Payment{}, err
	}

	verification, err := c.verifier.Verify(ctx, payment.Method, providerRef, payment.Amount)
	if err != nil {
		return entity.Payment{}, fmt.Errorf("verifying payment with %s: %w", payment.Method, err)
	}

	logger := log.FromContext(ctx).WithField("payment_reference", payment.Reference)
	now := time.Now().UTC()

	switch {
	case verification.Pending:
		return payment, &Error{Kind: KindVerificationPending, Message: "Payment is still being processed, retry shortly"}
	case !verification.Succeeded && payment.Method == entity.PaymentMethodCrypto:
		// The hash comes from the caller, so a bad one says nothing about
		// the transfer the buyer actually made. The sweep ends the reservation.
		logger.WithField("tx_hash", providerRef).Info("Transaction did not match payment")
		return payment, verificationFailed("Transaction does not pay for this order")
	case !verification.Succeeded:
		failed, applied, err := c.store.FailPayment(ctx, payment.Reference, verification.RawDetails, now)
		if err != nil {
			return entity.Payment{}, fmt.Errorf("failing payment: %w", err)
		}
		if !applied {
			return settledOutcome(failed)
		}
		logger.Info("Payment failed verification")
		return failed, verificationFailed("Payment verification failed")
	}

	settled, applied, err := c.store.SettlePayment(ctx, payment.Reference, providerRef, verification.RawDetails, now)
	var reused interface{ ProviderReferenceTaken() bool }
	if errors.As(err, &reused) && reused.ProviderReferenceTaken() {
		return entity.Payment{}, verificationFailed("Transaction already used for another payment")
	}
	if err != nil {
		return entity.Payment{}, fmt.Errorf("settling payment: %w", err)
	}
	if applied {
		logger.WithField("status", settled.Status).Info("Payment settled")
	}

	return settledOutcome(settled)
}

func providerReference(payment entity.Payment, req VerifyRequest) (string, error) {
	if payment.Method == entity.PaymentMethodCrypto {
		if req.TxHash == "" {
			return "", verificationFailed("Missing transaction hash")
		}
		return req.TxHash, nil
	}
	if payment.ProviderReference != "" {
		return payment.ProviderReference, nil
	}
	return payment.Reference, nil
}

func settledOutcome(payment entity.Payment) (entity.Payment, error) {
	switch payment.Status {
	case entity.PaymentStatusSucceeded:
		return payment, nil
	case entity.PaymentStatusRefundDue:
		return payment, verificationFailed("Payment received after the reservation expired, it will be refunded")
	case entity.PaymentStatusExpired:
		return payment, verificationFailed("Reservation expired before payment was confirmed")
	default:
		return payment, verificationFailed("Payment verification failed")
	}
}
