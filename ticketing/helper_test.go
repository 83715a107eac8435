package ticketing_test

import (
	"time"

	"eventhub/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var buyer = entity.Buyer{ID: "user-1", Email: "buyer@example.com"}

func intPtr(i int) *int {
	return &i
}

func newEvent(maxAttendees *int, attendance int) entity.Event {
	return entity.Event{
		ID:              uuid.NewString(),
		OrganizerID:     "organizer-1",
		Title:           "Lagos Jazz Night",
		Status:          entity.EventStatusPublished,
		StartsAt:        time.Now().Add(48 * time.Hour),
		EndsAt:          time.Now().Add(52 * time.Hour),
		MaxAttendees:    maxAttendees,
		AttendanceCount: attendance,
	}
}

func newTicketType(eventID string, quantity, remaining int) entity.TicketType {
	return entity.TicketType{
		ID:      uuid.NewString(),
		EventID: eventID,
		Name:    "Regular",
		Price: entity.Money{
			Amount:   decimal.RequireFromString("2500.00"),
			Currency: "NGN",
		},
		Quantity:  quantity,
		Remaining: remaining,
	}
}

func seed(store *MemoryStore, maxAttendees *int, attendance, remaining int) (entity.Event, entity.TicketType) {
	event := newEvent(maxAttendees, attendance)
	ticketType := newTicketType(event.ID, 100, remaining)
	store.AddEvent(event)
	store.AddTicketType(ticketType)
	return event, ticketType
}
