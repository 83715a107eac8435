package http

import (
	"bytes"
	"fmt"
	"net/http"

	"eventhub/entity"
	"eventhub/metrics"
	"eventhub/ticketing"

	"github.com/labstack/echo/v4"
	"github.com/yeqown/go-qrcode"
)

type purchaseRequest struct {
	TicketTypeID string               `json:"ticket_type_id" validate:"required,uuid"`
	Quantity     int                  `json:"quantity"`
	Method       entity.PaymentMethod `json:"method" validate:"required"`
}

func (h handler) Purchase(c echo.Context) error {
	var req purchaseRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	purchase, err := h.purchaser.Purchase(c.Request().Context(), ticketing.PurchaseRequest{
		TicketTypeID: req.TicketTypeID,
		Quantity:     req.Quantity,
		Buyer:        buyerFrom(c),
		Method:       req.Method,
	})
	metrics.TrackPurchase(string(req.Method), outcome(err))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, purchase)
}

type listOrdersQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending completed cancelled used"`
}

func (h handler) ListOrders(c echo.Context) error {
	var q listOrdersQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	orders, err := h.orders.OrdersByBuyer(c.Request().Context(), buyerFrom(c).ID, entity.OrderStatus(q.Status))
	if err != nil {
		return lookupError("orders", err)
	}

	return c.JSON(http.StatusOK, orders)
}

func (h handler) ListEventOrders(c echo.Context) error {
	var q listOrdersQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	e, err := h.organizedEvent(c)
	if err != nil {
		return respondError(c, err)
	}

	orders, err := h.orders.OrdersByEvent(c.Request().Context(), e.ID, entity.OrderStatus(q.Status))
	if err != nil {
		return lookupError("orders", err)
	}

	return c.JSON(http.StatusOK, orders)
}

// ownOrder loads the order in the path. Orders of other buyers are reported
// as missing.
func (h handler) ownOrder(c echo.Context) (entity.Order, error) {
	order, err := h.orders.Order(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		return entity.Order{}, lookupError("order", err)
	}
	if order.BuyerID != buyerFrom(c).ID {
		return entity.Order{}, notFound("order", nil)
	}
	return order, nil
}

func (h handler) GetOrder(c echo.Context) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

// OrderQR renders the ticket token as a QR code. Only paid orders get one.
func (h handler) OrderQR(c echo.Context) error {
	order, err := h.ownOrder(c)
	if err != nil {
		return err
	}
	if order.Status != entity.OrderStatusCompleted && order.Status != entity.OrderStatusUsed {
		return respondError(c, &ticketing.Error{
			Kind:    ticketing.KindPaymentNotConfirmed,
			Message: "Payment not completed",
			Order:   &order,
		})
	}

	qr, err := qrcode.New(entity.TicketToken(order.ID))
	if err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("encoding ticket qr code: %w", err),
		}
	}

	var buf bytes.Buffer
	if err := qr.SaveTo(&buf); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("rendering ticket qr code: %w", err),
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="ticket-%s.jpeg"`, order.ID))
	return c.Blob(http.StatusOK, "image/jpeg", buf.Bytes())
}

type redeemRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h handler) Redeem(c echo.Context) error {
	var req redeemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	e, err := h.organizedEvent(c)
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.redeemer.Redeem(c.Request().Context(), req.Token, e.ID)
	metrics.TrackRedemption(outcome(err))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, order)
}
