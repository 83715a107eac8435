package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventhub/config"
	"eventhub/entity"
	"eventhub/live"
	"eventhub/ticketing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const organizer = "organizer-1"

type fixture struct {
	events    *fakeEvents
	orders    fakeOrders
	purchaser *fakePurchaser
	redeemer  *fakeRedeemer
	confirmer *fakeConfirmer
	ballot    *fakeBallot
	hub       *live.Hub
	event     entity.Event
	server    *echo.Echo
}

func newFixture(t *testing.T, features config.FeatureFlags) *fixture {
	t.Helper()

	maxAttendees := 100
	event := entity.Event{
		ID:              uuid.NewString(),
		OrganizerID:     organizer,
		Title:           "Lagos Jazz Night",
		Status:          entity.EventStatusPublished,
		MaxAttendees:    &maxAttendees,
		AttendanceCount: 98,
		VotePrice:       &entity.Money{Amount: decimal.NewFromInt(100), Currency: "NGN"},
	}

	f := &fixture{
		events:    newFakeEvents(event),
		orders:    fakeOrders{orders: map[string]entity.Order{}},
		purchaser: &fakePurchaser{},
		redeemer:  &fakeRedeemer{},
		confirmer: &fakeConfirmer{},
		ballot:    &fakeBallot{},
		hub:       live.NewHub(live.NewMemoryBroker()),
		event:     event,
	}
	f.server = NewRouter(Deps{
		Auth:      fakeAuth{},
		Events:    f.events,
		Orders:    f.orders,
		Purchaser: f.purchaser,
		Redeemer:  f.redeemer,
		Confirmer: f.confirmer,
		Ballot:    f.ballot,
		Lister:    fakeLister{},
		Stripe:    fakeStripe{},
		Hub:       f.hub,
		Features:  features,
	})

	return f
}

func allFeatures() config.FeatureFlags {
	return config.FeatureFlags{
		Voting:         true,
		Paystack:       true,
		Stripe:         true,
		QRTickets:      true,
		LiveAttendance: true,
	}
}

func (f *fixture) do(t *testing.T, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+user)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestPurchase(t *testing.T) {
	f := newFixture(t, allFeatures())
	ticketTypeID := uuid.NewString()
	f.purchaser.result = ticketing.Purchase{
		Order:   entity.Order{ID: uuid.NewString(), Status: entity.OrderStatusPending, Quantity: 2},
		Payment: entity.PaymentSession{Reference: "pay-1", RedirectURL: "https://checkout.paystack.com/abc"},
	}

	rec := f.do(t, http.MethodPost, "/purchases", "buyer-1",
		`{"ticket_type_id": "`+ticketTypeID+`", "quantity": 2, "method": "paystack"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.purchaser.requests, 1)
	assert.Equal(t, ticketing.PurchaseRequest{
		TicketTypeID: ticketTypeID,
		Quantity:     2,
		Buyer:        entity.Buyer{ID: "buyer-1", Email: "buyer-1@example.com"},
		Method:       entity.PaymentMethodPaystack,
	}, f.purchaser.requests[0])

	var purchase ticketing.Purchase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchase))
	assert.Equal(t, "https://checkout.paystack.com/abc", purchase.Payment.RedirectURL)
}

func TestPurchase_capacityExceeded(t *testing.T) {
	f := newFixture(t, allFeatures())
	f.purchaser.err = &ticketing.Error{
		Kind:           ticketing.KindCapacityExceeded,
		Message:        "Only 2 spots remaining",
		SpotsRemaining: 2,
	}

	rec := f.do(t, http.MethodPost, "/purchases", "buyer-1",
		`{"ticket_type_id": "`+uuid.NewString()+`", "quantity": 3, "method": "paystack"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "CapacityExceeded", resp.Error)
	assert.Equal(t, "Only 2 spots remaining", resp.Message)
	require.NotNil(t, resp.SpotsRemaining)
	assert.Equal(t, 2, *resp.SpotsRemaining)
}

func TestPurchase_rejections(t *testing.T) {
	testCases := []struct {
		name     string
		user     string
		body     string
		err      error
		wantCode int
	}{
		{
			name:     "no token",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 1, "method": "paystack"}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "rejected token",
			user:     "expired",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 1, "method": "paystack"}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "malformed ticket type",
			user:     "buyer-1",
			body:     `{"ticket_type_id": "vip", "quantity": 1, "method": "paystack"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "sold out",
			user:     "buyer-1",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 1, "method": "paystack"}`,
			err:      &ticketing.Error{Kind: ticketing.KindInsufficientInventory, Message: "Not enough tickets available: 0 remaining"},
			wantCode: http.StatusConflict,
		},
		{
			name:     "too many",
			user:     "buyer-1",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 11, "method": "paystack"}`,
			err:      &ticketing.Error{Kind: ticketing.KindInvalidQuantity, Message: "Maximum 10 tickets per purchase"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "processor down",
			user:     "buyer-1",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 1, "method": "paystack"}`,
			err:      &ticketing.Error{Kind: ticketing.KindPaymentInitiationFailed, Message: "Payment initiation failed"},
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "database down",
			user:     "buyer-1",
			body:     `{"ticket_type_id": "` + uuid.NewString() + `", "quantity": 1, "method": "paystack"}`,
			err:      errors.New("connection refused"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, allFeatures())
			f.purchaser.err = tc.err

			rec := f.do(t, http.MethodPost, "/purchases", tc.user, tc.body)

			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, allFeatures())
	orderID := uuid.NewString()
	f.redeemer.order = entity.Order{ID: orderID, EventID: f.event.ID, Status: entity.OrderStatusUsed}

	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/redemptions", organizer,
		`{"token": "ticket:`+orderID+`"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ticket:"+orderID, f.redeemer.token)
	assert.Equal(t, f.event.ID, f.redeemer.eventID)
}

func TestRedeem_alreadyUsed(t *testing.T) {
	f := newFixture(t, allFeatures())
	usedAt := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	order := entity.Order{ID: uuid.NewString(), EventID: f.event.ID, Status: entity.OrderStatusUsed, UsedAt: &usedAt}
	f.redeemer.err = &ticketing.Error{
		Kind:    ticketing.KindAlreadyUsed,
		Message: "Ticket already used at 2026-03-14T19:30:00Z",
		UsedAt:  &usedAt,
		Order:   &order,
	}

	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/redemptions", organizer,
		`{"token": "ticket:`+order.ID+`"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "AlreadyUsed", resp.Error)
	require.NotNil(t, resp.UsedAt)
	assert.True(t, usedAt.Equal(*resp.UsedAt))
	require.NotNil(t, resp.Order)
	assert.Equal(t, order.ID, resp.Order.ID)
}

func TestRedeem_organizerOnly(t *testing.T) {
	f := newFixture(t, allFeatures())

	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/redemptions", "buyer-1",
		`{"token": "ticket:`+uuid.NewString()+`"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NotOrganizer", decodeError(t, rec).Error)
	assert.Empty(t, f.redeemer.token)

	rec = f.do(t, http.MethodPost, "/events/"+uuid.NewString()+"/redemptions", organizer,
		`{"token": "ticket:`+uuid.NewString()+`"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "EventNotFound", decodeError(t, rec).Error)
}

func TestVerifyPayment(t *testing.T) {
	txHash := "0x" + strings.Repeat("ab", 32)

	testCases := []struct {
		name        string
		query       string
		err         error
		wantCode    int
		wantRequest *ticketing.VerifyRequest
	}{
		{
			name:        "paystack callback",
			query:       "method=paystack&trxref=pay-1&reference=pay-1",
			wantCode:    http.StatusOK,
			wantRequest: &ticketing.VerifyRequest{Method: entity.PaymentMethodPaystack, Reference: "pay-1"},
		},
		{
			name:        "ledger transfer",
			query:       "method=crypto&reference=pay-2&tx_hash=" + txHash,
			wantCode:    http.StatusOK,
			wantRequest: &ticketing.VerifyRequest{Method: entity.PaymentMethodCrypto, Reference: "pay-2", TxHash: txHash},
		},
		{
			name:     "malformed transaction hash",
			query:    "method=crypto&reference=pay-2&tx_hash=0x1234",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing reference",
			query:    "method=paystack",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "still processing",
			query:    "method=paystack&reference=pay-1",
			err:      &ticketing.Error{Kind: ticketing.KindVerificationPending, Message: "Payment is still being processed, retry shortly"},
			wantCode: http.StatusAccepted,
		},
		{
			name:     "declined",
			query:    "method=paystack&reference=pay-1",
			err:      &ticketing.Error{Kind: ticketing.KindVerificationFailed, Message: "Payment verification failed"},
			wantCode: http.StatusPaymentRequired,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, allFeatures())
			f.confirmer.err = tc.err
			f.confirmer.payment = entity.Payment{
				Reference: "pay-1",
				Method:    entity.PaymentMethodPaystack,
				Status:    entity.PaymentStatusSucceeded,
				Purpose:   entity.TicketPurchase{OrderID: uuid.NewString()},
			}

			rec := f.do(t, http.MethodGet, "/payments/verify?"+tc.query, "", "")

			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if tc.wantRequest != nil {
				require.Len(t, f.confirmer.requests, 1)
				assert.Equal(t, *tc.wantRequest, f.confirmer.requests[0])
			}
		})
	}
}

func TestStripeWebhook(t *testing.T) {
	testCases := []struct {
		name      string
		signature string
		err       error
		wantCode  int
	}{
		{name: "completed", signature: "t=1,v1=abc", wantCode: http.StatusOK},
		{name: "verification failed", signature: "t=1,v1=abc", err: &ticketing.Error{Kind: ticketing.KindVerificationFailed}, wantCode: http.StatusOK},
		{name: "backend down", signature: "t=1,v1=abc", err: errors.New("connection refused"), wantCode: http.StatusInternalServerError},
		{name: "unsigned", wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, allFeatures())
			f.confirmer.err = tc.err

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"type": "checkout.session.completed"}`))
			if tc.signature != "" {
				req.Header.Set("Stripe-Signature", tc.signature)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestOrderQR(t *testing.T) {
	f := newFixture(t, allFeatures())
	completed := entity.Order{ID: uuid.NewString(), BuyerID: "buyer-1", Status: entity.OrderStatusCompleted}
	pending := entity.Order{ID: uuid.NewString(), BuyerID: "buyer-1", Status: entity.OrderStatusPending}
	f.orders.orders[completed.ID] = completed
	f.orders.orders[pending.ID] = pending

	rec := f.do(t, http.MethodGet, "/orders/"+completed.ID+"/qr", "buyer-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = f.do(t, http.MethodGet, "/orders/"+pending.ID+"/qr", "buyer-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, "/orders/"+completed.ID+"/qr", "buyer-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, allFeatures())
	mine := entity.Order{ID: uuid.NewString(), BuyerID: "buyer-1", EventID: f.event.ID, Status: entity.OrderStatusCompleted}
	theirs := entity.Order{ID: uuid.NewString(), BuyerID: "buyer-2", EventID: f.event.ID, Status: entity.OrderStatusCompleted}
	f.orders.orders[mine.ID] = mine
	f.orders.orders[theirs.ID] = theirs

	rec := f.do(t, http.MethodGet, "/orders?status=completed", "buyer-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []entity.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, mine.ID, orders[0].ID)

	rec = f.do(t, http.MethodGet, "/events/"+f.event.ID+"/orders", organizer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 2)

	rec = f.do(t, http.MethodGet, "/orders?status=refunded", "buyer-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t, allFeatures())

	rec := f.do(t, http.MethodPost, "/events", "organizer-2", `{
		"title": "Afrobeats Live",
		"venue": "Eko Hotel",
		"starts_at": "2026-12-01T18:00:00Z",
		"ends_at": "2026-12-01T23:00:00Z",
		"max_attendees": 500
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created entity.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "organizer-2", created.OrganizerID)
	assert.Equal(t, entity.EventStatusDraft, created.Status)

	rec = f.do(t, http.MethodPost, "/events", "organizer-2", `{
		"title": "Backwards",
		"venue": "Eko Hotel",
		"starts_at": "2026-12-01T18:00:00Z",
		"ends_at": "2026-12-01T17:00:00Z"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTicketType(t *testing.T) {
	f := newFixture(t, allFeatures())

	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/ticket-types", organizer,
		`{"name": "VIP", "price": {"amount": "15000", "currency": "ngn"}, "quantity": 50}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.events.ticketTypes, 1)
	assert.Equal(t, 50, f.events.ticketTypes[0].Remaining)
	assert.Equal(t, "NGN", f.events.ticketTypes[0].Price.Currency)

	rec = f.do(t, http.MethodPost, "/events/"+f.event.ID+"/ticket-types", "buyer-1",
		`{"name": "VIP", "price": {"amount": "15000", "currency": "NGN"}, "quantity": 50}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateTicketType_rejectsUnpayablePrices(t *testing.T) {
	f := newFixture(t, allFeatures())

	for _, amount := range []string{"0", "-500"} {
		rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/ticket-types", organizer,
			`{"name": "Free", "price": {"amount": "`+amount+`", "currency": "NGN"}, "quantity": 50}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
	}
	assert.Empty(t, f.events.ticketTypes)
}

func TestVoting_disabled(t *testing.T) {
	features := allFeatures()
	features.Voting = false
	f := newFixture(t, features)

	rec := f.do(t, http.MethodPost, "/events/"+f.event.ID+"/votes", "buyer-1",
		`{"contestant_id": "`+uuid.NewString()+`", "vote_count": 5, "method": "paystack"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f = newFixture(t, allFeatures())
	rec = f.do(t, http.MethodPost, "/events/"+f.event.ID+"/votes", "buyer-1",
		`{"contestant_id": "`+uuid.NewString()+`", "vote_count": 5, "method": "paystack"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.ballot.requests, 1)
	assert.Equal(t, 5, f.ballot.requests[0].Count)
}

func TestGetAttendance_timeline(t *testing.T) {
	f := newFixture(t, allFeatures())
	doorsOpen := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	f.events.timeline = map[string][]entity.AttendanceBucket{
		f.event.ID: {
			{Start: doorsOpen, Admitted: 60},
			{Start: doorsOpen.Add(30 * time.Minute), Admitted: 38},
		},
	}

	rec := f.do(t, http.MethodGet, "/events/"+f.event.ID+"/attendance", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var plain entity.Attendance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plain))
	assert.Equal(t, 98, plain.AttendanceCount)
	assert.Nil(t, plain.Timeline)

	rec = f.do(t, http.MethodGet, "/events/"+f.event.ID+"/attendance?bucket=30m", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var withTimeline entity.Attendance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withTimeline))
	assert.Equal(t, 30*time.Minute, f.events.timelineBucket)
	require.Len(t, withTimeline.Timeline, 2)
	assert.True(t, doorsOpen.Equal(withTimeline.Timeline[0].Start))
	assert.Equal(t, 38, withTimeline.Timeline[1].Admitted)

	for _, bucket := range []string{"soon", "10s", "48h"} {
		rec = f.do(t, http.MethodGet, "/events/"+f.event.ID+"/attendance?bucket="+bucket, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bucket)
	}
}

func TestStreamAttendance(t *testing.T) {
	f := newFixture(t, allFeatures())
	srv := httptest.NewServer(f.server)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/"+f.event.ID+"/attendance/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewScanner(resp.Body)
	next := func() entity.Attendance {
		t.Helper()
		for events.Scan() {
			data, ok := strings.CutPrefix(events.Text(), "data: ")
			if !ok {
				continue
			}
			var a entity.Attendance
			require.NoError(t, json.Unmarshal([]byte(data), &a))
			return a
		}
		t.Fatalf("stream ended: %v", events.Err())
		return entity.Attendance{}
	}

	assert.Equal(t, 98, next().AttendanceCount)

	f.events.setAttendance(f.event.ID, 100)
	require.NoError(t, f.hub.Notify(ctx, live.AttendanceTopic(f.event.ID)))

	assert.Equal(t, 100, next().AttendanceCount)
}

func TestStreamAttendance_unknownEvent(t *testing.T) {
	f := newFixture(t, allFeatures())

	rec := f.do(t, http.MethodGet, "/events/"+uuid.NewString()+"/attendance/stream", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
