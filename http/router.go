package http

import (
	"net/http"
	"reflect"
	"strings"

	"eventhub/config"
	"eventhub/live"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ErrServerClosed = http.ErrServerClosed

type Deps struct {
	Auth      Authenticator
	Events    EventRepo
	Orders    OrderRepo
	Purchaser Purchaser
	Redeemer  Redeemer
	Confirmer PaymentConfirmer
	Ballot    VoteCaster
	Lister    EventLister
	// Stripe is nil when card payments through Stripe are disabled.
	Stripe   StripeWebhook
	Hub      *live.Hub
	Features config.FeatureFlags
}

func NewRouter(deps Deps) *echo.Echo {
	server := commonHTTP.NewEcho()
	server.Validator = newRequestValidator()

	server.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := handler{
		events:    deps.Events,
		orders:    deps.Orders,
		purchaser: deps.Purchaser,
		redeemer:  deps.Redeemer,
		confirmer: deps.Confirmer,
		ballot:    deps.Ballot,
		lister:    deps.Lister,
		stripe:    deps.Stripe,
		hub:       deps.Hub,
	}

	server.GET("/events", h.ListEvents)
	server.GET("/events/:event_id", h.GetEvent)
	server.GET("/events/:event_id/ticket-types", h.ListTicketTypes)
	server.GET("/events/:event_id/attendance", h.GetAttendance)
	server.GET("/payments/verify", h.VerifyPayment)
	if deps.Stripe != nil {
		server.POST("/webhooks/stripe", h.StripeWebhook)
	}

	auth := authMiddleware(deps.Auth)
	server.POST("/events", h.CreateEvent, auth)
	server.POST("/events/:event_id/publish", h.PublishEvent, auth)
	server.POST("/events/:event_id/ticket-types", h.CreateTicketType, auth)
	server.GET("/events/:event_id/orders", h.ListEventOrders, auth)
	server.POST("/events/:event_id/redemptions", h.Redeem, auth)
	server.POST("/purchases", h.Purchase, auth)
	server.GET("/orders", h.ListOrders, auth)
	server.GET("/orders/:order_id", h.GetOrder, auth)

	if deps.Features.QRTickets {
		server.GET("/orders/:order_id/qr", h.OrderQR, auth)
	}
	if deps.Features.LiveAttendance {
		server.GET("/events/:event_id/attendance/stream", h.StreamAttendance)
	}
	if deps.Features.Voting {
		server.POST("/events/:event_id/contestants", h.CreateContestant, auth)
		server.POST("/events/:event_id/votes", h.CastVote, auth)
		server.GET("/events/:event_id/tally", h.GetTally)
		if deps.Features.LiveAttendance {
			server.GET("/events/:event_id/tally/stream", h.StreamTally)
		}
	}

	return server
}

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return requestValidator{validate: v}
}

func (v requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}
