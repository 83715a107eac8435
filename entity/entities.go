package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) Times(n int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(n))),
		Currency: m.Currency,
	}
}

// MinorUnits returns the amount in the currency's smallest unit (kobo, cents).
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

type Event struct {
	ID              string      `json:"event_id" db:"event_id"`
	OrganizerID     string      `json:"organizer_id" db:"organizer_id"`
	Title           string      `json:"title" db:"title"`
	Description     string      `json:"description" db:"description"`
	Venue           string      `json:"venue" db:"venue"`
	Category        string      `json:"category" db:"category"`
	Status          EventStatus `json:"status" db:"status"`
	StartsAt        time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt          time.Time   `json:"ends_at" db:"ends_at"`
	MaxAttendees    *int        `json:"max_attendees,omitempty" db:"max_attendees"`
	AttendanceCount int         `json:"attendance_count" db:"attendance_count"`
	VotePrice       *Money      `json:"vote_price,omitempty" db:"-"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// SpotsRemaining reports how many more attendees the event admits. ok is false
// when the event has no attendee limit.
func (e Event) SpotsRemaining() (spots int, ok bool) {
	if e.MaxAttendees == nil {
		return 0, false
	}
	spots = *e.MaxAttendees - e.AttendanceCount
	if spots < 0 {
		spots = 0
	}
	return spots, true
}

type TicketType struct {
	ID        string    `json:"ticket_type_id" db:"ticket_type_id"`
	EventID   string    `json:"event_id" db:"event_id"`
	Name      string    `json:"name" db:"name"`
	Price     Money     `json:"price" db:"-"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Remaining int       `json:"remaining" db:"remaining"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Contestant struct {
	ID      string `json:"contestant_id" db:"contestant_id"`
	EventID string `json:"event_id" db:"event_id"`
	Name    string `json:"name" db:"name"`
}

// Vote is a ledger entry written once, when the payment behind it settles.
type Vote struct {
	ID               string    `json:"vote_id" db:"vote_id"`
	EventID          string    `json:"event_id" db:"event_id"`
	ContestantID     string    `json:"contestant_id" db:"contestant_id"`
	VoterID          string    `json:"voter_id" db:"voter_id"`
	Count            int       `json:"vote_count" db:"vote_count"`
	PaymentReference string    `json:"payment_reference" db:"payment_reference"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type ContestantTally struct {
	ContestantID string `json:"contestant_id" db:"contestant_id"`
	Name         string `json:"name" db:"name"`
	Votes        int    `json:"votes" db:"votes"`
}

type Attendance struct {
	EventID         string             `json:"event_id"`
	AttendanceCount int                `json:"attendance_count"`
	MaxAttendees    *int               `json:"max_attendees,omitempty"`
	Timeline        []AttendanceBucket `json:"timeline,omitempty"`
}

// AttendanceBucket counts the attendees admitted in [Start, Start+bucket).
type AttendanceBucket struct {
	Start    time.Time `json:"start" db:"bucket_start"`
	Admitted int       `json:"admitted" db:"admitted"`
}

type Buyer struct {
	ID    string
	Email string
}
