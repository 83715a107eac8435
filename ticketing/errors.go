package ticketing

import (
	"errors"
	"fmt"
	"time"

	"eventhub/entity"
)

type ErrorKind string

const (
	KindInvalidQuantity         ErrorKind = "InvalidQuantity"
	KindUnsupportedMethod       ErrorKind = "UnsupportedPaymentMethod"
	KindTicketTypeNotFound      ErrorKind = "TicketTypeNotFound"
	KindVotingUnavailable       ErrorKind = "VotingUnavailable"
	KindInsufficientInventory   ErrorKind = "InsufficientInventory"
	KindCapacityExceeded        ErrorKind = "CapacityExceeded"
	KindPaymentInitiationFailed ErrorKind = "PaymentInitiationFailed"
	KindPaymentNotConfirmed     ErrorKind = "PaymentNotConfirmed"
	KindOrderNotFound           ErrorKind = "OrderNotFound"
	KindWrongEvent              ErrorKind = "WrongEvent"
	KindAlreadyUsed             ErrorKind = "AlreadyUsed"
	KindVerificationFailed      ErrorKind = "VerificationFailed"
	KindVerificationPending     ErrorKind = "VerificationPending"
	KindEventNotFound           ErrorKind = "EventNotFound"
	KindNotOrganizer            ErrorKind = "NotOrganizer"
	KindEventNotDraft           ErrorKind = "EventNotDraft"
	KindEventNotOnSale          ErrorKind = "EventNotOnSale"
)

// Error is a recoverable, user-facing failure of the purchase, redemption or
// verification flow. The populated payload fields depend on Kind.
type Error struct {
	Kind    ErrorKind
	Message string

	Remaining      int
	SpotsRemaining int
	UsedAt         *time.Time
	Order          *entity.Order

	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// KindOf returns the kind of a flow error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func invalidQuantity(quantity int) *Error {
	msg := fmt.Sprintf("Maximum %d tickets per purchase", entity.MaxTicketsPerOrder)
	if quantity < 1 {
		msg = "Quantity must be at least 1"
	}
	return &Error{Kind: KindInvalidQuantity, Message: msg}
}

func insufficientInventory(remaining int) *Error {
	return &Error{
		Kind:      KindInsufficientInventory,
		Message:   fmt.Sprintf("Not enough tickets available: %d remaining", remaining),
		Remaining: remaining,
	}
}

func capacityExceeded(spots int) *Error {
	msg := "This event has reached maximum capacity"
	switch {
	case spots == 1:
		msg = "Only 1 spot remaining"
	case spots > 1:
		msg = fmt.Sprintf("Only %d spots remaining", spots)
	}
	return &Error{Kind: KindCapacityExceeded, Message: msg, SpotsRemaining: spots}
}

func paymentInitiationFailed(err error) *Error {
	return &Error{Kind: KindPaymentInitiationFailed, Message: "Payment initiation failed", err: err}
}

func orderNotFound(err error) *Error {
	return &Error{Kind: KindOrderNotFound, Message: "Invalid ticket: Order not found", err: err}
}

func wrongEvent(order entity.Order) *Error {
	return &Error{
		Kind:    KindWrongEvent,
		Message: "Wrong event: This ticket is for a different event",
		Order:   &order,
	}
}

func alreadyUsed(order entity.Order) *Error {
	msg := "Ticket already used"
	if order.UsedAt != nil {
		msg = fmt.Sprintf("Ticket already used at %s", order.UsedAt.UTC().Format(time.RFC3339))
	}
	return &Error{Kind: KindAlreadyUsed, Message: msg, UsedAt: order.UsedAt, Order: &order}
}

func paymentNotConfirmed(order entity.Order) *Error {
	return &Error{Kind: KindPaymentNotConfirmed, Message: "Payment not completed", Order: &order}
}

func verificationFailed(msg string) *Error {
	return &Error{Kind: KindVerificationFailed, Message: msg}
}
