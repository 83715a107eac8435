package clients

import (
	"context"
	"fmt"

	"eventhub/entity"
)

// PaymentBackend talks to one payment processor.
type PaymentBackend interface {
	Initiate(ctx context.Context, charge entity.Charge) (entity.PaymentSession, error)
	Verify(ctx context.Context, providerReference string, expected entity.Money) (entity.Verification, error)
	Refund(ctx context.Context, providerReference string, amount entity.Money, idempotencyKey string) error
}

// Payments dispatches to the backend registered for a payment method.
type Payments struct {
	backends map[entity.PaymentMethod]PaymentBackend
}

func NewPayments() *Payments {
	return &Payments{
		backends: map[entity.PaymentMethod]PaymentBackend{},
	}
}

func (p *Payments) Register(method entity.PaymentMethod, backend PaymentBackend) {
	p.backends[method] = backend
}

func (p *Payments) Supports(method entity.PaymentMethod) bool {
	_, ok := p.backends[method]
	return ok
}

func (p *Payments) backend(method entity.PaymentMethod) (PaymentBackend, error) {
	b, ok := p.backends[method]
	if !ok {
		return nil, fmt.Errorf("no payment backend for method %q", method)
	}
	return b, nil
}

func (p *Payments) Initiate(ctx context.Context, method entity.PaymentMethod, charge entity.Charge) (entity.PaymentSession, error) {
	b, err := p.backend(method)
	if err != nil {
		return entity.PaymentSession{}, err
	}
	return b.Initiate(ctx, charge)
}

func (p *Payments) Verify(ctx context.Context, method entity.PaymentMethod, providerReference string, expected entity.Money) (entity.Verification, error) {
	b, err := p.backend(method)
	if err != nil {
		return entity.Verification{}, err
	}
	return b.Verify(ctx, providerReference, expected)
}

func (p *Payments) Refund(ctx context.Context, method entity.PaymentMethod, providerReference string, amount entity.Money, idempotencyKey string) error {
	b, err := p.backend(method)
	if err != nil {
		return err
	}
	return b.Refund(ctx, providerReference, amount, idempotencyKey)
}

type manualRefundError struct {
	reason string
}

func (e manualRefundError) Error() string {
	return "refund must be made manually: " + e.reason
}

func (e manualRefundError) ManualRefund() bool {
	return true
}
