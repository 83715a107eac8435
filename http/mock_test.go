package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"eventhub/clients"
	"eventhub/entity"
	"eventhub/ticketing"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, idToken string) (entity.Buyer, error) {
	if idToken == "" || idToken == "expired" {
		return entity.Buyer{}, errors.New("token expired")
	}
	return entity.Buyer{ID: idToken, Email: idToken + "@example.com"}, nil
}

type fakeEvents struct {
	mu          sync.Mutex
	events      map[string]entity.Event
	ticketTypes []entity.TicketType
	contestants []entity.Contestant
	tally       []entity.ContestantTally
	err         error

	timeline       map[string][]entity.AttendanceBucket
	timelineBucket time.Duration
}

func newFakeEvents(events ...entity.Event) *fakeEvents {
	f := &fakeEvents{events: map[string]entity.Event{}}
	for _, e := range events {
		f.events[e.ID] = e
	}
	return f
}

func (f *fakeEvents) AddEvent(_ context.Context, e entity.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events[e.ID] = e
	return nil
}

func (f *fakeEvents) Event(_ context.Context, eventID string) (entity.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return entity.Event{}, f.err
	}
	e, ok := f.events[eventID]
	if !ok {
		return entity.Event{}, entity.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) Events(_ context.Context, status entity.EventStatus) ([]entity.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []entity.Event
	for _, e := range f.events {
		if status == "" || e.Status == status {
			events = append(events, e)
		}
	}
	return events, f.err
}

func (f *fakeEvents) Attendance(ctx context.Context, eventID string) (entity.Attendance, error) {
	e, err := f.Event(ctx, eventID)
	if err != nil {
		return entity.Attendance{}, err
	}
	return entity.Attendance{EventID: e.ID, AttendanceCount: e.AttendanceCount, MaxAttendees: e.MaxAttendees}, nil
}

func (f *fakeEvents) AttendanceTimeline(_ context.Context, eventID string, bucket time.Duration) ([]entity.AttendanceBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelineBucket = bucket
	return f.timeline[eventID], nil
}

func (f *fakeEvents) setAttendance(eventID string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[eventID]
	e.AttendanceCount = count
	f.events[eventID] = e
}

func (f *fakeEvents) AddTicketType(_ context.Context, t entity.TicketType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticketTypes = append(f.ticketTypes, t)
	return f.err
}

func (f *fakeEvents) TicketTypes(_ context.Context, eventID string) ([]entity.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []entity.TicketType
	for _, t := range f.ticketTypes {
		if t.EventID == eventID {
			types = append(types, t)
		}
	}
	return types, f.err
}

func (f *fakeEvents) AddContestant(_ context.Context, c entity.Contestant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contestants = append(f.contestants, c)
	return f.err
}

func (f *fakeEvents) Tally(_ context.Context, _ string) ([]entity.ContestantTally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tally, f.err
}

type fakeOrders struct {
	orders map[string]entity.Order
}

func (f fakeOrders) Order(_ context.Context, orderID string) (entity.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return entity.Order{}, entity.ErrNotFound
	}
	return o, nil
}

func (f fakeOrders) OrdersByBuyer(_ context.Context, buyerID string, status entity.OrderStatus) ([]entity.Order, error) {
	return f.filter(func(o entity.Order) bool { return o.BuyerID == buyerID }, status), nil
}

func (f fakeOrders) OrdersByEvent(_ context.Context, eventID string, status entity.OrderStatus) ([]entity.Order, error) {
	return f.filter(func(o entity.Order) bool { return o.EventID == eventID }, status), nil
}

func (f fakeOrders) filter(match func(entity.Order) bool, status entity.OrderStatus) []entity.Order {
	orders := []entity.Order{}
	for _, o := range f.orders {
		if match(o) && (status == "" || o.Status == status) {
			orders = append(orders, o)
		}
	}
	return orders
}

type fakePurchaser struct {
	requests []ticketing.PurchaseRequest
	result   ticketing.Purchase
	err      error
}

func (f *fakePurchaser) Purchase(_ context.Context, req ticketing.PurchaseRequest) (ticketing.Purchase, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type fakeRedeemer struct {
	token, eventID string
	order          entity.Order
	err            error
}

func (f *fakeRedeemer) Redeem(_ context.Context, token, eventID string) (entity.Order, error) {
	f.token, f.eventID = token, eventID
	return f.order, f.err
}

type fakeConfirmer struct {
	requests []ticketing.VerifyRequest
	payment  entity.Payment
	err      error
}

func (f *fakeConfirmer) Confirm(_ context.Context, req ticketing.VerifyRequest) (entity.Payment, error) {
	f.requests = append(f.requests, req)
	return f.payment, f.err
}

type fakeBallot struct {
	requests []ticketing.CastVote
	session  entity.PaymentSession
	err      error
}

func (f *fakeBallot) Cast(_ context.Context, req ticketing.CastVote) (entity.PaymentSession, error) {
	f.requests = append(f.requests, req)
	return f.session, f.err
}

type fakeLister struct {
	listing ticketing.Listing
	err     error
}

func (f fakeLister) Publish(_ context.Context, _ ticketing.PublishRequest) (ticketing.Listing, error) {
	return f.listing, f.err
}

type fakeStripe struct {
	completed clients.CheckoutCompleted
	err       error
}

func (f fakeStripe) ParseWebhook(_ []byte, signature string) (clients.CheckoutCompleted, error) {
	if signature == "" {
		return clients.CheckoutCompleted{}, errors.New("no signatures found")
	}
	return f.completed, f.err
}
