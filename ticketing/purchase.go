package ticketing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v3"
)

type OrderStore interface {
	TicketType(ctx context.Context, ticketTypeID string) (entity.TicketType, error)
	Event(ctx context.Context, eventID string) (entity.Event, error)
	PlaceOrder(ctx context.Context, order entity.Order, payment entity.Payment) error
	AttachProviderReference(ctx context.Context, reference, providerReference string) error
	CancelOrder(ctx context.Context, orderID, reason string) (entity.Order, error)
}

type PaymentInitiator interface {
	Supports(method entity.PaymentMethod) bool
	Initiate(ctx context.Context, method entity.PaymentMethod, charge entity.Charge) (entity.PaymentSession, error)
}

type PurchaseRequest struct {
	TicketTypeID string
	Quantity     int
	Buyer        entity.Buyer
	Method       entity.PaymentMethod
}

type Purchase struct {
	Order   entity.Order          `json:"order"`
	Payment entity.PaymentSession `json:"payment"`
}

type Orchestrator struct {
	store    OrderStore
	payments PaymentInitiator
}

func NewOrchestrator(store OrderStore, payments PaymentInitiator) Orchestrator {
	return Orchestrator{
		store:    store,
		payments: payments,
	}
}

// Purchase reserves quantity units of a ticket type for the buyer and starts
// the payment. The order stays pending until the payment is verified.
func (o Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) (Purchase, error) {
	if req.Quantity < 1 || req.Quantity > entity.MaxTicketsPerOrder {
		return Purchase{}, invalidQuantity(req.Quantity)
	}
	if !o.payments.Supports(req.Method) {
		return Purchase{}, unsupportedMethod(req.Method)
	}

	ticketType, err := o.store.TicketType(ctx, req.TicketTypeID)
	if errors.Is(err, entity.ErrNotFound) {
		return Purchase{}, &Error{Kind: KindTicketTypeNotFound, Message: "Ticket not found", err: err}
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("getting ticket type: %w", err)
	}
	if ticketType.Remaining < req.Quantity {
		return Purchase{}, insufficientInventory(ticketType.Remaining)
	}

	event, err := o.store.Event(ctx, ticketType.EventID)
	if err != nil {
		return Purchase{}, fmt.Errorf("getting event: %w", err)
	}
	if event.Status != entity.EventStatusPublished {
		return Purchase{}, &Error{Kind: KindEventNotOnSale, Message: "Tickets for this event are not on sale"}
	}
	if spots, limited := event.SpotsRemaining(); limited && req.Quantity > spots {
		return Purchase{}, capacityExceeded(spots)
	}

	now := time.Now().UTC()
	order := entity.Order{
		ID:               uuid.NewString(),
		BuyerID:          req.Buyer.ID,
		BuyerEmail:       req.Buyer.Email,
		TicketTypeID:     ticketType.ID,
		EventID:          event.ID,
		Quantity:         req.Quantity,
		Total:            ticketType.Price.Times(req.Quantity),
		Status:           entity.OrderStatusPending,
		PaymentReference: NewPaymentReference(),
		PaymentMethod:    req.Method,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	purpose := entity.TicketPurchase{
		OrderID:  order.ID,
		EventID:  event.ID,
		BuyerID:  req.Buyer.ID,
		Quantity: req.Quantity,
	}
	payment := entity.Payment{
		Reference: order.PaymentReference,
		Method:    req.Method,
		Amount:    order.Total,
		Status:    entity.PaymentStatusPending,
		Purpose:   purpose,
		CreatedAt: now,
	}

	if err := o.store.PlaceOrder(ctx, order, payment); err != nil {
		var notEnough interface{ NotEnoughTickets() int }
		if errors.As(err, &notEnough) {
			return Purchase{}, insufficientInventory(notEnough.NotEnoughTickets())
		}
		return Purchase{}, fmt.Errorf("placing order: %w", err)
	}

	session, err := o.payments.Initiate(ctx, req.Method, entity.Charge{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Email:       req.Buyer.Email,
		Description: fmt.Sprintf("%d x %s - %s", req.Quantity, ticketType.Name, event.Title),
		Purpose:     purpose,
	})
	if err != nil {
		if _, cancelErr := o.store.CancelOrder(ctx, order.ID, "payment initiation failed"); cancelErr != nil {
			log.FromContext(ctx).WithError(cancelErr).WithField("order_id", order.ID).
				Error("Failed to release reservation after payment initiation failure")
		}
		return Purchase{}, paymentInitiationFailed(err)
	}

	if session.ProviderReference != "" {
		if err := o.store.AttachProviderReference(ctx, payment.Reference, session.ProviderReference); err != nil {
			return Purchase{}, fmt.Errorf("attaching provider reference: %w", err)
		}
	}

	return Purchase{Order: order, Payment: session}, nil
}

// NewPaymentReference returns a reference accepted by every payment backend.
func NewPaymentReference() string {
	return "pay-" + shortuuid.New()
}

func unsupportedMethod(method entity.PaymentMethod) *Error {
	return &Error{
		Kind:    KindUnsupportedMethod,
		Message: fmt.Sprintf("Payment method %q is not available", method),
	}
}
