package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventhub/entity"
	"eventhub/ticketing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3,alpha"`
}

func (m money) toEntity() entity.Money {
	return entity.Money{
		Amount:   m.Amount,
		Currency: strings.ToUpper(m.Currency),
	}
}

type createEventRequest struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=5000"`
	Venue        string    `json:"venue" validate:"required"`
	Category     string    `json:"category"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	EndsAt       time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	MaxAttendees *int      `json:"max_attendees" validate:"omitempty,min=1"`
	VotePrice    *money    `json:"vote_price"`
}

func (h handler) CreateEvent(c echo.Context) error {
	var req createEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	e := entity.Event{
		ID:           uuid.NewString(),
		OrganizerID:  buyerFrom(c).ID,
		Title:        req.Title,
		Description:  req.Description,
		Venue:        req.Venue,
		Category:     req.Category,
		Status:       entity.EventStatusDraft,
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		MaxAttendees: req.MaxAttendees,
		CreatedAt:    time.Now().UTC(),
	}
	if req.VotePrice != nil {
		if !req.VotePrice.Amount.IsPositive() {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "vote price must be positive"}
		}
		price := req.VotePrice.toEntity()
		e.VotePrice = &price
	}

	if err := h.events.AddEvent(c.Request().Context(), e); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("adding event: %w", err),
		}
	}

	return c.JSON(http.StatusCreated, e)
}

type publishEventRequest struct {
	// Method pays the listing fee, when one is charged.
	Method entity.PaymentMethod `json:"method"`
}

func (h handler) PublishEvent(c echo.Context) error {
	var req publishEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	listing, err := h.lister.Publish(c.Request().Context(), ticketing.PublishRequest{
		EventID:   c.Param("event_id"),
		Organizer: buyerFrom(c),
		Method:    req.Method,
	})
	if err != nil {
		return respondError(c, err)
	}

	if listing.Payment != nil {
		return c.JSON(http.StatusAccepted, listing)
	}
	return c.JSON(http.StatusOK, listing)
}

type listEventsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=draft published cancelled completed"`
}

func (h handler) ListEvents(c echo.Context) error {
	var q listEventsQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	events, err := h.events.Events(c.Request().Context(), entity.EventStatus(q.Status))
	if err != nil {
		return lookupError("events", err)
	}

	return c.JSON(http.StatusOK, events)
}

func (h handler) GetEvent(c echo.Context) error {
	e, err := h.events.Event(c.Request().Context(), c.Param("event_id"))
	if err != nil {
		return lookupError("event", err)
	}

	return c.JSON(http.StatusOK, e)
}

// organizedEvent loads the event in the path and checks the caller runs it.
func (h handler) organizedEvent(c echo.Context) (entity.Event, error) {
	e, err := h.events.Event(c.Request().Context(), c.Param("event_id"))
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Event{}, &ticketing.Error{Kind: ticketing.KindEventNotFound, Message: "Event not found"}
	}
	if err != nil {
		return entity.Event{}, fmt.Errorf("getting event: %w", err)
	}
	if e.OrganizerID != buyerFrom(c).ID {
		return entity.Event{}, &ticketing.Error{
			Kind:    ticketing.KindNotOrganizer,
			Message: "Only the organizer can manage this event",
		}
	}
	return e, nil
}

type createTicketTypeRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Price    money  `json:"price" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

func (h handler) CreateTicketType(c echo.Context) error {
	var req createTicketTypeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	// Every payment backend refuses a zero charge.
	if !req.Price.Amount.IsPositive() {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "price must be positive"}
	}

	e, err := h.organizedEvent(c)
	if err != nil {
		return respondError(c, err)
	}

	t := entity.TicketType{
		ID:        uuid.NewString(),
		EventID:   e.ID,
		Name:      req.Name,
		Price:     req.Price.toEntity(),
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.events.AddTicketType(c.Request().Context(), t); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("adding ticket type: %w", err),
		}
	}

	return c.JSON(http.StatusCreated, t)
}

func (h handler) ListTicketTypes(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.Param("event_id")

	if _, err := h.events.Event(ctx, eventID); err != nil {
		return lookupError("event", err)
	}

	types, err := h.events.TicketTypes(ctx, eventID)
	if err != nil {
		return lookupError("ticket types", err)
	}

	return c.JSON(http.StatusOK, types)
}

type createContestantRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h handler) CreateContestant(c echo.Context) error {
	var req createContestantRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	e, err := h.organizedEvent(c)
	if err != nil {
		return respondError(c, err)
	}
	if e.VotePrice == nil {
		return respondError(c, &ticketing.Error{
			Kind:    ticketing.KindVotingUnavailable,
			Message: "Voting is not enabled for this event",
		})
	}

	contestant := entity.Contestant{
		ID:      uuid.NewString(),
		EventID: e.ID,
		Name:    req.Name,
	}
	if err := h.events.AddContestant(c.Request().Context(), contestant); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("adding contestant: %w", err),
		}
	}

	return c.JSON(http.StatusCreated, contestant)
}

type attendanceQuery struct {
	// Bucket, when set, adds admissions over time grouped by this duration.
	Bucket string `query:"bucket"`
}

const (
	minAttendanceBucket = time.Minute
	maxAttendanceBucket = 24 * time.Hour
)

func (h handler) GetAttendance(c echo.Context) error {
	var req attendanceQuery
	if err := bind(c, &req); err != nil {
		return err
	}

	var bucket time.Duration
	if req.Bucket != "" {
		var err error
		bucket, err = time.ParseDuration(req.Bucket)
		if err != nil || bucket < minAttendanceBucket || bucket > maxAttendanceBucket {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "bucket must be a duration between 1m and 24h"}
		}
	}

	ctx := c.Request().Context()
	eventID := c.Param("event_id")

	attendance, err := h.events.Attendance(ctx, eventID)
	if err != nil {
		return lookupError("event", err)
	}

	if bucket > 0 {
		attendance.Timeline, err = h.events.AttendanceTimeline(ctx, eventID, bucket)
		if err != nil {
			return lookupError("attendance timeline", err)
		}
		if attendance.Timeline == nil {
			attendance.Timeline = []entity.AttendanceBucket{}
		}
	}

	return c.JSON(http.StatusOK, attendance)
}

func (h handler) GetTally(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.Param("event_id")

	if _, err := h.events.Event(ctx, eventID); err != nil {
		return lookupError("event", err)
	}

	tally, err := h.events.Tally(ctx, eventID)
	if err != nil {
		return lookupError("tally", err)
	}

	return c.JSON(http.StatusOK, tally)
}
