package command

import (
	"time"

	"eventhub/entity"

	"github.com/ThreeDotsLabs/watermill"
)

type header struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func newHeader(idempotencyKey string) header {
	return header{
		ID:             watermill.NewUUID(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// RefundPayment returns money collected for something the service could not
// deliver, such as tickets whose reservation expired before payment.
type RefundPayment struct {
	Header            header               `json:"header"`
	PaymentReference  string               `json:"payment_reference"`
	Method            entity.PaymentMethod `json:"method"`
	ProviderReference string               `json:"provider_reference"`
	Amount            entity.Money         `json:"amount"`
	Reason            string               `json:"reason"`
}

func NewRefundPayment(payment entity.Payment, reason string) RefundPayment {
	return RefundPayment{
		Header:            newHeader("refund-" + payment.Reference),
		PaymentReference:  payment.Reference,
		Method:            payment.Method,
		ProviderReference: payment.ProviderReference,
		Amount:            payment.Amount,
		Reason:            reason,
	}
}
