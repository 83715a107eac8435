package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"
)

const maxVotesPerBallot = 100

type BallotStore interface {
	Event(ctx context.Context, eventID string) (entity.Event, error)
	Contestant(ctx context.Context, contestantID string) (entity.Contestant, error)
	CreatePayment(ctx context.Context, payment entity.Payment) error
	AttachProviderReference(ctx context.Context, reference, providerReference string) error
	FailPayment(ctx context.Context, reference string, details json.RawMessage, at time.Time) (entity.Payment, bool, error)
}

type CastVote struct {
	EventID      string
	ContestantID string
	Voter        entity.Buyer
	Count        int
	Method       entity.PaymentMethod
}

// Ballot sells votes. A vote is recorded only once its payment settles.
type Ballot struct {
	store    BallotStore
	payments PaymentInitiator
}

func NewBallot(store BallotStore, payments PaymentInitiator) Ballot {
	return Ballot{
		store:    store,
		payments: payments,
	}
}

func (b Ballot) Cast(ctx context.Context, req CastVote) (entity.PaymentSession, error) {
	if req.Count < 1 || req.Count > maxVotesPerBallot {
		return entity.PaymentSession{}, &Error{
			Kind:    KindInvalidQuantity,
			Message: fmt.Sprintf("Votes per ballot must be between 1 and %d", maxVotesPerBallot),
		}
	}
	if !b.payments.Supports(req.Method) {
		return entity.PaymentSession{}, unsupportedMethod(req.Method)
	}

	event, err := b.store.Event(ctx, req.EventID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.PaymentSession{}, &Error{Kind: KindVotingUnavailable, Message: "Event not found", err: err}
	}
	if err != nil {
		return entity.PaymentSession{}, fmt.Errorf("getting event: %w", err)
	}
	if event.VotePrice == nil || event.Status != entity.EventStatusPublished {
		return entity.PaymentSession{}, &Error{Kind: KindVotingUnavailable, Message: "Voting is not open for this event"}
	}

	contestant, err := b.store.Contestant(ctx, req.ContestantID)
	if errors.Is(err, entity.ErrNotFound) || (err == nil && contestant.EventID != event.ID) {
		return entity.PaymentSession{}, &Error{Kind: KindVotingUnavailable, Message: "Contestant not found"}
	}
	if err != nil {
		return entity.PaymentSession{}, fmt.Errorf("getting contestant: %w", err)
	}

	purpose := entity.VoteBallot{
		EventID:      event.ID,
		ContestantID: contestant.ID,
		VoterID:      req.Voter.ID,
		Count:        req.Count,
	}
	payment := entity.Payment{
		Reference: NewPaymentReference(),
		Method:    req.Method,
		Amount:    event.VotePrice.Times(req.Count),
		Status:    entity.PaymentStatusPending,
		Purpose:   purpose,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.CreatePayment(ctx, payment); err != nil {
		return entity.PaymentSession{}, fmt.Errorf("creating payment: %w", err)
	}

	session, err := b.payments.Initiate(ctx, req.Method, entity.Charge{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Email:       req.Voter.Email,
		Description: fmt.Sprintf("%d vote(s) for %s - %s", req.Count, contestant.Name, event.Title),
		Purpose:     purpose,
	})
	if err != nil {
		if _, _, failErr := b.store.FailPayment(ctx, payment.Reference, nil, time.Now().UTC()); failErr != nil {
			err = errors.Join(err, failErr)
		}
		return entity.PaymentSession{}, paymentInitiationFailed(err)
	}

	if session.ProviderReference != "" {
		if err := b.store.AttachProviderReference(ctx, payment.Reference, session.ProviderReference); err != nil {
			return entity.PaymentSession{}, fmt.Errorf("attaching provider reference: %w", err)
		}
	}

	return session, nil
}
