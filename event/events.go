package event

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

type OrderPlaced struct {
	Header        header               `json:"header"`
	OrderID       string               `json:"order_id"`
	EventID       string               `json:"event_id"`
	TicketTypeID  string               `json:"ticket_type_id"`
	BuyerID       string               `json:"buyer_id"`
	Quantity      int                  `json:"quantity"`
	Total         entity.Money         `json:"total"`
	PaymentMethod entity.PaymentMethod `json:"payment_method"`
}

func NewOrderPlaced(order entity.Order) OrderPlaced {
	return OrderPlaced{
		Header:        newHeader("order-placed-" + order.ID),
		OrderID:       order.ID,
		EventID:       order.EventID,
		TicketTypeID:  order.TicketTypeID,
		BuyerID:       order.BuyerID,
		Quantity:      order.Quantity,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
	}
}

type OrderConfirmed struct {
	Header           header       `json:"header"`
	OrderID          string       `json:"order_id"`
	EventID          string       `json:"event_id"`
	BuyerID          string       `json:"buyer_id"`
	BuyerEmail       string       `json:"buyer_email"`
	Quantity         int          `json:"quantity"`
	Total            entity.Money `json:"total"`
	PaymentReference string       `json:"payment_reference"`
}

func NewOrderConfirmed(order entity.Order) OrderConfirmed {
	return OrderConfirmed{
		Header:           newHeader("order-confirmed-" + order.ID),
		OrderID:          order.ID,
		EventID:          order.EventID,
		BuyerID:          order.BuyerID,
		BuyerEmail:       order.BuyerEmail,
		Quantity:         order.Quantity,
		Total:            order.Total,
		PaymentReference: order.PaymentReference,
	}
}

type OrderCancelled struct {
	Header       header `json:"header"`
	OrderID      string `json:"order_id"`
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	BuyerID      string `json:"buyer_id"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason"`
}

func NewOrderCancelled(order entity.Order) OrderCancelled {
	return OrderCancelled{
		Header:       newHeader("order-cancelled-" + order.ID),
		OrderID:      order.ID,
		EventID:      order.EventID,
		TicketTypeID: order.TicketTypeID,
		BuyerID:      order.BuyerID,
		Quantity:     order.Quantity,
		Reason:       order.CancelReason,
	}
}

type OrderRedeemed struct {
	Header   header    `json:"header"`
	OrderID  string    `json:"order_id"`
	EventID  string    `json:"event_id"`
	Quantity int       `json:"quantity"`
	UsedAt   time.Time `json:"used_at"`
}

func NewOrderRedeemed(order entity.Order, usedAt time.Time) OrderRedeemed {
	return OrderRedeemed{
		Header:   newHeader("order-redeemed-" + order.ID),
		OrderID:  order.ID,
		EventID:  order.EventID,
		Quantity: order.Quantity,
		UsedAt:   usedAt,
	}
}

type VoteRecorded struct {
	Header           header `json:"header"`
	EventID          string `json:"event_id"`
	ContestantID     string `json:"contestant_id"`
	VoterID          string `json:"voter_id"`
	Count            int    `json:"vote_count"`
	PaymentReference string `json:"payment_reference"`
}

func NewVoteRecorded(vote entity.Vote) VoteRecorded {
	return VoteRecorded{
		Header:           newHeader("vote-recorded-" + vote.PaymentReference),
		EventID:          vote.EventID,
		ContestantID:     vote.ContestantID,
		VoterID:          vote.VoterID,
		Count:            vote.Count,
		PaymentReference: vote.PaymentReference,
	}
}

type EventPublished struct {
	Header  header `json:"header"`
	EventID string `json:"event_id"`
}

func NewEventPublished(eventID string) EventPublished {
	return EventPublished{
		Header:  newHeader("event-published-" + eventID),
		EventID: eventID,
	}
}
