package ticketing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventhub/entity"
)

type notEnoughTicketsError struct {
	remaining int
}

func (e notEnoughTicketsError) Error() string {
	return fmt.Sprintf("not enough tickets: %d remaining", e.remaining)
}

func (e notEnoughTicketsError) NotEnoughTickets() int {
	return e.remaining
}

// MemoryStore keeps the same atomicity guarantees as the Postgres store by
// holding one lock for every compound update.
type MemoryStore struct {
	lock        sync.Mutex
	events      map[string]entity.Event
	ticketTypes map[string]entity.TicketType
	contestants map[string]entity.Contestant
	orders      map[string]entity.Order
	payments    map[string]entity.Payment
	votes       []entity.Vote

	ConfirmedOrders  int
	RecordedVotes    int
	RefundsRequested int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      map[string]entity.Event{},
		ticketTypes: map[string]entity.TicketType{},
		contestants: map[string]entity.Contestant{},
		orders:      map[string]entity.Order{},
		payments:    map[string]entity.Payment{},
	}
}

func (s *MemoryStore) AddEvent(e entity.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events[e.ID] = e
}

func (s *MemoryStore) AddTicketType(t entity.TicketType) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ticketTypes[t.ID] = t
}

func (s *MemoryStore) AddContestant(c entity.Contestant) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.contestants[c.ID] = c
}

func (s *MemoryStore) AddOrder(o entity.Order) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.orders[o.ID] = o
}

func (s *MemoryStore) Event(_ context.Context, eventID string) (entity.Event, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return entity.Event{}, entity.ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) TicketType(_ context.Context, ticketTypeID string) (entity.TicketType, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return entity.TicketType{}, entity.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Contestant(_ context.Context, contestantID string) (entity.Contestant, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.contestants[contestantID]
	if !ok {
		return entity.Contestant{}, entity.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Order(orderID string) entity.Order {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.orders[orderID]
}

func (s *MemoryStore) Orders() []entity.Order {
	s.lock.Lock()
	defer s.lock.Unlock()
	var orders []entity.Order
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	return orders
}

func (s *MemoryStore) Votes() []entity.Vote {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]entity.Vote(nil), s.votes...)
}

func (s *MemoryStore) PlaceOrder(_ context.Context, order entity.Order, payment entity.Payment) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	t := s.ticketTypes[order.TicketTypeID]
	if t.Remaining < order.Quantity {
		return notEnoughTicketsError{remaining: t.Remaining}
	}
	t.Remaining -= order.Quantity
	s.ticketTypes[t.ID] = t
	s.orders[order.ID] = order
	s.payments[payment.Reference] = payment
	return nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, payment entity.Payment) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.payments[payment.Reference] = payment
	return nil
}

func (s *MemoryStore) Payment(_ context.Context, reference string) (entity.Payment, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return entity.Payment{}, entity.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) AttachProviderReference(_ context.Context, reference, providerReference string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return entity.ErrNotFound
	}
	p.ProviderReference = providerReference
	s.payments[reference] = p
	return nil
}

func (s *MemoryStore) CancelOrder(_ context.Context, orderID, reason string) (entity.Order, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return entity.Order{}, entity.ErrNotFound
	}
	s.cancel(&o, reason, entity.PaymentStatusFailed)
	return o, nil
}

func (s *MemoryStore) cancel(o *entity.Order, reason string, paymentStatus entity.PaymentStatus) {
	if o.Status != entity.OrderStatusPending {
		return
	}
	o.Status = entity.OrderStatusCancelled
	o.CancelReason = reason
	s.orders[o.ID] = *o

	t := s.ticketTypes[o.TicketTypeID]
	t.Remaining += o.Quantity
	s.ticketTypes[t.ID] = t

	if p, ok := s.payments[o.PaymentReference]; ok && p.Status == entity.PaymentStatusPending {
		p.Status = paymentStatus
		s.payments[p.Reference] = p
	}
}

func (s *MemoryStore) RedeemOrder(_ context.Context, orderID string, usedAt time.Time, check func(entity.Order) error) (entity.Order, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return entity.Order{}, entity.ErrNotFound
	}
	if err := check(o); err != nil {
		return entity.Order{}, err
	}
	if o.Status != entity.OrderStatusCompleted {
		return entity.Order{}, errors.New("order changed status")
	}

	e := s.events[o.EventID]
	if spots, limited := e.SpotsRemaining(); limited && o.Quantity > spots {
		return entity.Order{}, capacityReachedError{spots: spots}
	}
	e.AttendanceCount += o.Quantity
	s.events[e.ID] = e

	o.Status = entity.OrderStatusUsed
	o.UsedAt = &usedAt
	s.orders[o.ID] = o
	return o, nil
}

type capacityReachedError struct {
	spots int
}

func (e capacityReachedError) Error() string {
	return fmt.Sprintf("capacity reached: %d spots remaining", e.spots)
}

func (e capacityReachedError) CapacityReached() int {
	return e.spots
}

func (s *MemoryStore) SettlePayment(_ context.Context, reference, providerReference string, _ json.RawMessage, at time.Time) (entity.Payment, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.payments[reference]
	if !ok {
		return entity.Payment{}, false, entity.ErrNotFound
	}
	if !p.Status.Verifiable() {
		return p, false, nil
	}
	p.Status = entity.PaymentStatusSucceeded
	p.ProviderReference = providerReference
	p.SettledAt = &at

	switch purpose := p.Purpose.(type) {
	case entity.TicketPurchase:
		o := s.orders[purpose.OrderID]
		if o.Status != entity.OrderStatusPending {
			p.Status = entity.PaymentStatusRefundDue
			s.RefundsRequested++
			break
		}
		o.Status = entity.OrderStatusCompleted
		s.orders[o.ID] = o
		s.ConfirmedOrders++
	case entity.VoteBallot:
		s.votes = append(s.votes, entity.Vote{
			EventID:          purpose.EventID,
			ContestantID:     purpose.ContestantID,
			VoterID:          purpose.VoterID,
			Count:            purpose.Count,
			PaymentReference: p.Reference,
		})
		s.RecordedVotes++
	case entity.EventRegistration:
		e := s.events[purpose.EventID]
		if e.Status == entity.EventStatusDraft {
			e.Status = entity.EventStatusPublished
			s.events[e.ID] = e
		} else {
			p.Status = entity.PaymentStatusRefundDue
			s.RefundsRequested++
		}
	}

	s.payments[reference] = p
	return p, true, nil
}

func (s *MemoryStore) PublishEvent(_ context.Context, eventID string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	e, ok := s.events[eventID]
	if !ok || e.Status != entity.EventStatusDraft {
		return false, nil
	}
	e.Status = entity.EventStatusPublished
	s.events[eventID] = e
	return true, nil
}

func (s *MemoryStore) FailPayment(_ context.Context, reference string, _ json.RawMessage, at time.Time) (entity.Payment, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.payments[reference]
	if !ok {
		return entity.Payment{}, false, entity.ErrNotFound
	}
	if p.Status != entity.PaymentStatusPending {
		return p, false, nil
	}
	p.Status = entity.PaymentStatusFailed
	p.SettledAt = &at
	s.payments[reference] = p

	if purpose, ok := p.Purpose.(entity.TicketPurchase); ok {
		o := s.orders[purpose.OrderID]
		s.cancel(&o, "payment failed", entity.PaymentStatusFailed)
	}
	return p, true, nil
}

func (s *MemoryStore) ExpirePendingOrders(_ context.Context, cutoff time.Time) ([]entity.Order, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var expired []entity.Order
	for _, o := range s.orders {
		if o.Status == entity.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			s.cancel(&o, "reservation expired", entity.PaymentStatusExpired)
			expired = append(expired, o)
		}
	}
	return expired, nil
}

type MockPayments struct {
	lock       sync.Mutex
	Initiated  []entity.Charge
	Verified   []string
	InitErr    error
	Outcome    entity.Verification
	// Outcomes overrides Outcome for specific provider references.
	Outcomes   map[string]entity.Verification
	Disallowed map[entity.PaymentMethod]bool
}

func (m *MockPayments) Supports(method entity.PaymentMethod) bool {
	return !m.Disallowed[method]
}

func (m *MockPayments) Initiate(_ context.Context, method entity.PaymentMethod, charge entity.Charge) (entity.PaymentSession, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.InitErr != nil {
		return entity.PaymentSession{}, m.InitErr
	}
	m.Initiated = append(m.Initiated, charge)
	return entity.PaymentSession{
		Reference:         charge.Reference,
		ProviderReference: "prov_" + charge.Reference,
		RedirectURL:       "https://pay.example.com/" + string(method) + "/" + charge.Reference,
	}, nil
}

func (m *MockPayments) Verify(_ context.Context, _ entity.PaymentMethod, providerReference string, _ entity.Money) (entity.Verification, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.Verified = append(m.Verified, providerReference)
	if outcome, ok := m.Outcomes[providerReference]; ok {
		return outcome, nil
	}
	return m.Outcome, nil
}
