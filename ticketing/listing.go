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

type ListingStore interface {
	Event(ctx context.Context, eventID string) (entity.Event, error)
	PublishEvent(ctx context.Context, eventID string) (bool, error)
	CreatePayment(ctx context.Context, payment entity.Payment) error
	AttachProviderReference(ctx context.Context, reference, providerReference string) error
	FailPayment(ctx context.Context, reference string, details json.RawMessage, at time.Time) (entity.Payment, bool, error)
}

type PublishRequest struct {
	EventID   string
	Organizer entity.Buyer
	Method    entity.PaymentMethod
}

// Listing is the outcome of a publish request. Payment is set when the
// organizer still has to pay the listing fee; the event goes live once that
// payment settles.
type Listing struct {
	Event   entity.Event
	Payment *entity.PaymentSession
}

// Lister takes draft events live, charging a listing fee when one is set.
type Lister struct {
	store    ListingStore
	payments PaymentInitiator
	fee      entity.Money
}

func NewLister(store ListingStore, payments PaymentInitiator, fee entity.Money) Lister {
	return Lister{
		store:    store,
		payments: payments,
		fee:      fee,
	}
}

func (l Lister) Publish(ctx context.Context, req PublishRequest) (Listing, error) {
	event, err := l.store.Event(ctx, req.EventID)
	if errors.Is(err, entity.ErrNotFound) {
		return Listing{}, &Error{Kind: KindEventNotFound, Message: "Event not found", err: err}
	}
	if err != nil {
		return Listing{}, fmt.Errorf("getting event: %w", err)
	}
	if event.OrganizerID != req.Organizer.ID {
		return Listing{}, &Error{Kind: KindNotOrganizer, Message: "Only the organizer can publish this event"}
	}
	if event.Status != entity.EventStatusDraft {
		return Listing{}, &Error{Kind: KindEventNotDraft, Message: fmt.Sprintf("Event is already %s", event.Status)}
	}

	if !l.fee.Amount.IsPositive() {
		published, err := l.store.PublishEvent(ctx, event.ID)
		if err != nil {
			return Listing{}, fmt.Errorf("publishing event: %w", err)
		}
		if !published {
			return Listing{}, &Error{Kind: KindEventNotDraft, Message: "Event is no longer a draft"}
		}
		event.Status = entity.EventStatusPublished
		return Listing{Event: event}, nil
	}

	if !l.payments.Supports(req.Method) {
		return Listing{}, unsupportedMethod(req.Method)
	}

	purpose := entity.EventRegistration{
		EventID:     event.ID,
		OrganizerID: req.Organizer.ID,
	}
	payment := entity.Payment{
		Reference: NewPaymentReference(),
		Method:    req.Method,
		Amount:    l.fee,
		Status:    entity.PaymentStatusPending,
		Purpose:   purpose,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.CreatePayment(ctx, payment); err != nil {
		return Listing{}, fmt.Errorf("creating payment: %w", err)
	}

	session, err := l.payments.Initiate(ctx, req.Method, entity.Charge{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Email:       req.Organizer.Email,
		Description: "Listing fee - " + event.Title,
		Purpose:     purpose,
	})
	if err != nil {
		if _, _, failErr := l.store.FailPayment(ctx, payment.Reference, nil, time.Now().UTC()); failErr != nil {
			log.FromContext(ctx).WithError(failErr).WithField("payment_reference", payment.Reference).
				Error("Failed to close listing payment after initiation failure")
		}
		return Listing{}, paymentInitiationFailed(err)
	}

	if session.ProviderReference != "" {
		if err := l.store.AttachProviderReference(ctx, payment.Reference, session.ProviderReference); err != nil {
			return Listing{}, fmt.Errorf("attaching provider reference: %w", err)
		}
	}

	return Listing{Event: event, Payment: &session}, nil
}
