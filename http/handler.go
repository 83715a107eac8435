package http

import (
	"context"
	"time"

	"eventhub/clients"
	"eventhub/entity"
	"eventhub/live"
	"eventhub/ticketing"
)

type EventRepo interface {
	AddEvent(ctx context.Context, e entity.Event) error
	Event(ctx context.Context, eventID string) (entity.Event, error)
	Events(ctx context.Context, status entity.EventStatus) ([]entity.Event, error)
	Attendance(ctx context.Context, eventID string) (entity.Attendance, error)
	AttendanceTimeline(ctx context.Context, eventID string, bucket time.Duration) ([]entity.AttendanceBucket, error)
	AddTicketType(ctx context.Context, t entity.TicketType) error
	TicketTypes(ctx context.Context, eventID string) ([]entity.TicketType, error)
	AddContestant(ctx context.Context, c entity.Contestant) error
	Tally(ctx context.Context, eventID string) ([]entity.ContestantTally, error)
}

type OrderRepo interface {
	Order(ctx context.Context, orderID string) (entity.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string, status entity.OrderStatus) ([]entity.Order, error)
	OrdersByEvent(ctx context.Context, eventID string, status entity.OrderStatus) ([]entity.Order, error)
}

type Purchaser interface {
	Purchase(ctx context.Context, req ticketing.PurchaseRequest) (ticketing.Purchase, error)
}

type Redeemer interface {
	Redeem(ctx context.Context, token, eventID string) (entity.Order, error)
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, req ticketing.VerifyRequest) (entity.Payment, error)
}

type VoteCaster interface {
	Cast(ctx context.Context, req ticketing.CastVote) (entity.PaymentSession, error)
}

type EventLister interface {
	Publish(ctx context.Context, req ticketing.PublishRequest) (ticketing.Listing, error)
}

type StripeWebhook interface {
	ParseWebhook(payload []byte, signature string) (clients.CheckoutCompleted, error)
}

type handler struct {
	events    EventRepo
	orders    OrderRepo
	purchaser Purchaser
	redeemer  Redeemer
	confirmer PaymentConfirmer
	ballot    VoteCaster
	lister    EventLister
	stripe    StripeWebhook
	hub       *live.Hub
}
