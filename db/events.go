package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventhub/entity"
	"eventhub/event"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func CreateEventsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		event_id UUID PRIMARY KEY,
		organizer_id VARCHAR(128) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		venue VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'draft',
		starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ends_at TIMESTAMP WITH TIME ZONE NOT NULL,
		max_attendees INTEGER CHECK (max_attendees > 0),
		attendance_count INTEGER NOT NULL DEFAULT 0 CHECK (attendance_count >= 0),
		vote_price_amount NUMERIC(12, 2),
		vote_price_currency CHAR(3),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
		CHECK (ends_at >= starts_at),
		CHECK (max_attendees IS NULL OR attendance_count <= max_attendees)
	);`)
	return err
}

func CreateTicketTypesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ticket_types (
		ticket_type_id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events (event_id),
		name VARCHAR(255) NOT NULL,
		price_amount NUMERIC(12, 2) NOT NULL,
		price_currency CHAR(3) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		remaining INTEGER NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
		CHECK (remaining >= 0 AND remaining <= quantity)
	);
	CREATE INDEX IF NOT EXISTS ticket_types_event_idx ON ticket_types (event_id);`)
	return err
}

func CreateContestantsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS contestants (
		contestant_id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events (event_id),
		name VARCHAR(255) NOT NULL
	);`)
	return err
}

const eventColumns = `event_id, organizer_id, title, description, venue, category, status,
	starts_at, ends_at, max_attendees, attendance_count, vote_price_amount, vote_price_currency, created_at`

type eventRow struct {
	entity.Event
	VotePriceAmount   decimal.NullDecimal `db:"vote_price_amount"`
	VotePriceCurrency sql.NullString      `db:"vote_price_currency"`
}

func (r eventRow) toEntity() entity.Event {
	e := r.Event
	if r.VotePriceAmount.Valid {
		e.VotePrice = &entity.Money{
			Amount:   r.VotePriceAmount.Decimal,
			Currency: r.VotePriceCurrency.String,
		}
	}
	return e
}

const ticketTypeColumns = `ticket_type_id, event_id, name, price_amount, price_currency, quantity, remaining, created_at`

type ticketTypeRow struct {
	entity.TicketType
	PriceAmount   decimal.Decimal `db:"price_amount"`
	PriceCurrency string          `db:"price_currency"`
}

func (r ticketTypeRow) toEntity() entity.TicketType {
	t := r.TicketType
	t.Price = entity.Money{Amount: r.PriceAmount, Currency: r.PriceCurrency}
	return t
}

type EventRepo struct {
	db     *sqlx.DB
	outbox Outbox
}

func NewEventRepo(db *sqlx.DB, outbox Outbox) EventRepo {
	return EventRepo{
		db:     db,
		outbox: outbox,
	}
}

func (r EventRepo) AddEvent(ctx context.Context, e entity.Event) error {
	var voteAmount decimal.NullDecimal
	var voteCurrency sql.NullString
	if e.VotePrice != nil {
		voteAmount = decimal.NewNullDecimal(e.VotePrice.Amount)
		voteCurrency = sql.NullString{String: e.VotePrice.Currency, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO events
		(event_id, organizer_id, title, description, venue, category, status,
		starts_at, ends_at, max_attendees, vote_price_amount, vote_price_currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`,
		e.ID, e.OrganizerID, e.Title, e.Description, e.Venue, e.Category, e.Status,
		e.StartsAt, e.EndsAt, e.MaxAttendees, voteAmount, voteCurrency, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// PublishEvent opens a draft event for sale. published is false when the
// event was not a draft.
func (r EventRepo) PublishEvent(ctx context.Context, eventID string) (published bool, err error) {
	err = runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		published, err = publishDraftEvent(ctx, tx, r.outbox, eventID)
		return err
	})
	return published, err
}

func publishDraftEvent(ctx context.Context, tx *sqlx.Tx, outbox Outbox, eventID string) (bool, error) {
	n, err := rowsAffected(tx.ExecContext(ctx, `UPDATE events SET status = 'published'
		WHERE event_id = $1 AND status = 'draft'`, eventID))
	if err != nil {
		return false, fmt.Errorf("publishing event: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := outbox.PublishInTx(ctx, tx.Tx, event.NewEventPublished(eventID)); err != nil {
		return false, fmt.Errorf("publishing event in transaction: %w", err)
	}

	return true, nil
}

func (r EventRepo) Event(ctx context.Context, eventID string) (entity.Event, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE event_id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Event{}, fmt.Errorf("querying event: %w", err)
	}

	return row.toEntity(), nil
}

// Events lists events, newest first. An empty status lists every event.
func (r EventRepo) Events(ctx context.Context, status entity.EventStatus) ([]entity.Event, error) {
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+eventColumns+` FROM events
		WHERE ($1 = '' OR status = $1)
		ORDER BY starts_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	events := make([]entity.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}

	return events, nil
}

func (r EventRepo) Attendance(ctx context.Context, eventID string) (entity.Attendance, error) {
	e, err := r.Event(ctx, eventID)
	if err != nil {
		return entity.Attendance{}, err
	}

	return entity.Attendance{
		EventID:         e.ID,
		AttendanceCount: e.AttendanceCount,
		MaxAttendees:    e.MaxAttendees,
	}, nil
}

// AttendanceTimeline groups redeemed orders by the bucket their scan fell in.
// Buckets with no admissions are left out.
func (r EventRepo) AttendanceTimeline(ctx context.Context, eventID string, bucket time.Duration) ([]entity.AttendanceBucket, error) {
	var timeline []entity.AttendanceBucket
	err := r.db.SelectContext(ctx, &timeline, `SELECT
			to_timestamp(floor(extract(epoch FROM used_at)::float8 / $2) * $2) AS bucket_start,
			SUM(quantity) AS admitted
		FROM orders
		WHERE event_id = $1 AND status = 'used' AND used_at IS NOT NULL
		GROUP BY bucket_start
		ORDER BY bucket_start`, eventID, bucket.Seconds())
	if err != nil {
		return nil, fmt.Errorf("querying attendance timeline: %w", err)
	}

	return timeline, nil
}

func (r EventRepo) AddTicketType(ctx context.Context, t entity.TicketType) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO ticket_types
		(ticket_type_id, event_id, name, price_amount, price_currency, quantity, remaining, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		t.ID, t.EventID, t.Name, t.Price.Amount, t.Price.Currency, t.Quantity, t.Remaining, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting ticket type: %w", err)
	}

	return nil
}

func (r EventRepo) TicketType(ctx context.Context, ticketTypeID string) (entity.TicketType, error) {
	var row ticketTypeRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE ticket_type_id = $1`, ticketTypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.TicketType{}, fmt.Errorf("ticket type %s: %w", ticketTypeID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.TicketType{}, fmt.Errorf("querying ticket type: %w", err)
	}

	return row.toEntity(), nil
}

func (r EventRepo) TicketTypes(ctx context.Context, eventID string) ([]entity.TicketType, error) {
	var rows []ticketTypeRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+ticketTypeColumns+` FROM ticket_types
		WHERE event_id = $1 ORDER BY price_amount, name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying ticket types: %w", err)
	}

	ticketTypes := make([]entity.TicketType, 0, len(rows))
	for _, row := range rows {
		ticketTypes = append(ticketTypes, row.toEntity())
	}

	return ticketTypes, nil
}

func (r EventRepo) AddContestant(ctx context.Context, c entity.Contestant) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO contestants (contestant_id, event_id, name)
		VALUES ($1, $2, $3);`, c.ID, c.EventID, c.Name)
	if err != nil {
		return fmt.Errorf("inserting contestant: %w", err)
	}

	return nil
}

func (r EventRepo) Contestant(ctx context.Context, contestantID string) (entity.Contestant, error) {
	var c entity.Contestant
	err := r.db.GetContext(ctx, &c, `SELECT contestant_id, event_id, name FROM contestants
		WHERE contestant_id = $1`, contestantID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Contestant{}, fmt.Errorf("contestant %s: %w", contestantID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Contestant{}, fmt.Errorf("querying contestant: %w", err)
	}

	return c, nil
}

func (r EventRepo) Tally(ctx context.Context, eventID string) ([]entity.ContestantTally, error) {
	tally := []entity.ContestantTally{}
	err := r.db.SelectContext(ctx, &tally, `SELECT c.contestant_id, c.name, COALESCE(SUM(v.vote_count), 0) AS votes
		FROM contestants c
		LEFT JOIN votes v ON v.contestant_id = c.contestant_id
		WHERE c.event_id = $1
		GROUP BY c.contestant_id, c.name
		ORDER BY votes DESC, c.name`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying tally: %w", err)
	}

	return tally, nil
}
