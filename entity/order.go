package entity

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusUsed      OrderStatus = "used"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled, OrderStatusUsed:
		return true
	}
	return false
}

// MaxTicketsPerOrder caps a single purchase regardless of availability.
const MaxTicketsPerOrder = 10

type Order struct {
	ID               string        `json:"order_id" db:"order_id"`
	BuyerID          string        `json:"buyer_id" db:"buyer_id"`
	BuyerEmail       string        `json:"buyer_email" db:"buyer_email"`
	TicketTypeID     string        `json:"ticket_type_id" db:"ticket_type_id"`
	EventID          string        `json:"event_id" db:"event_id"`
	Quantity         int           `json:"quantity" db:"quantity"`
	Total            Money         `json:"total" db:"-"`
	Status           OrderStatus   `json:"status" db:"status"`
	PaymentReference string        `json:"payment_reference,omitempty" db:"payment_reference"`
	PaymentMethod    PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	CancelReason     string        `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
	UsedAt           *time.Time    `json:"used_at,omitempty" db:"used_at"`
}

const ticketTokenPrefix = "ticket:"

// TicketToken is the string carried by the ticket's QR code.
func TicketToken(orderID string) string {
	return ticketTokenPrefix + orderID
}

func ParseTicketToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	orderID, ok := strings.CutPrefix(token, ticketTokenPrefix)
	if !ok || orderID == "" {
		return "", fmt.Errorf("malformed ticket token %q", token)
	}
	return orderID, nil
}
