package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodPaystack PaymentMethod = "paystack"
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodCrypto   PaymentMethod = "crypto"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusRefundDue PaymentStatus = "refund_due"
)

// Verifiable reports whether a processor verdict can still change the payment.
// An expired payment may have been paid late and then needs a refund.
func (s PaymentStatus) Verifiable() bool {
	return s == PaymentStatusPending || s == PaymentStatusExpired
}

// PaymentPurpose is what a payment pays for. The set of purposes is closed:
// TicketPurchase, VoteBallot and EventRegistration.
type PaymentPurpose interface {
	Kind() PurposeKind
	isPaymentPurpose()
}

type PurposeKind string

const (
	PurposeTicket       PurposeKind = "ticket"
	PurposeVote         PurposeKind = "vote"
	PurposeRegistration PurposeKind = "event_registration"
)

type TicketPurchase struct {
	OrderID  string `json:"order_id"`
	EventID  string `json:"event_id"`
	BuyerID  string `json:"buyer_id"`
	Quantity int    `json:"quantity"`
}

func (TicketPurchase) Kind() PurposeKind { return PurposeTicket }
func (TicketPurchase) isPaymentPurpose() {}

type VoteBallot struct {
	EventID      string `json:"event_id"`
	ContestantID string `json:"contestant_id"`
	VoterID      string `json:"voter_id"`
	Count        int    `json:"vote_count"`
}

func (VoteBallot) Kind() PurposeKind { return PurposeVote }
func (VoteBallot) isPaymentPurpose() {}

// EventRegistration is an organizer fee for listing an event.
type EventRegistration struct {
	EventID     string `json:"event_id"`
	OrganizerID string `json:"organizer_id"`
}

func (EventRegistration) Kind() PurposeKind { return PurposeRegistration }
func (EventRegistration) isPaymentPurpose() {}

func MarshalPurpose(p PaymentPurpose) (PurposeKind, []byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("marshalling %s purpose: %w", p.Kind(), err)
	}
	return p.Kind(), data, nil
}

func UnmarshalPurpose(kind PurposeKind, data []byte) (PaymentPurpose, error) {
	var (
		p   PaymentPurpose
		err error
	)
	switch kind {
	case PurposeTicket:
		var v TicketPurchase
		err = json.Unmarshal(data, &v)
		p = v
	case PurposeVote:
		var v VoteBallot
		err = json.Unmarshal(data, &v)
		p = v
	case PurposeRegistration:
		var v EventRegistration
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown payment purpose %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshalling %s purpose: %w", kind, err)
	}
	return p, nil
}

type Payment struct {
	Reference         string
	Method            PaymentMethod
	Amount            Money
	Status            PaymentStatus
	ProviderReference string
	Purpose           PaymentPurpose
	CreatedAt         time.Time
	SettledAt         *time.Time
}

// Charge is what a payment backend is asked to collect.
type Charge struct {
	Reference   string
	Amount      Money
	Email       string
	Description string
	Purpose     PaymentPurpose
}

// PaymentSession is returned by a backend when a payment is started. RedirectURL
// is where the payer completes the payment.
type PaymentSession struct {
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference,omitempty"`
	RedirectURL       string `json:"redirect_url"`
}

// Verification is a backend's answer about a payment. Pending means the
// backend has no final outcome yet.
type Verification struct {
	Succeeded  bool
	Pending    bool
	RawDetails json.RawMessage
}
