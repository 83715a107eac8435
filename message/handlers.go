package message

import (
	"context"
	"errors"
	"fmt"

	"eventhub/command"
	"eventhub/entity"
	"eventhub/event"
	"eventhub/live"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type BuyerNotifier interface {
	NotifyBuyer(ctx context.Context, buyerID, title, body string, data map[string]string) error
}

type ChangeNotifier interface {
	Notify(ctx context.Context, topic string) error
}

type Refunder interface {
	Refund(ctx context.Context, method entity.PaymentMethod, providerReference string, amount entity.Money, idempotencyKey string) error
}

type Handler struct {
	notifier BuyerNotifier
	changes  ChangeNotifier
	refunder Refunder
}

func NewHandler(n BuyerNotifier, c ChangeNotifier, r Refunder) Handler {
	return Handler{
		notifier: n,
		changes:  c,
		refunder: r,
	}
}

func (h Handler) NotifyBuyerConfirmed(ctx context.Context, e *event.OrderConfirmed) error {
	body := fmt.Sprintf("Your %d ticket(s) are confirmed. Show the QR code at the entrance.", e.Quantity)
	data := map[string]string{
		"type":     "order_confirmed",
		"order_id": e.OrderID,
		"event_id": e.EventID,
	}

	if err := h.notifier.NotifyBuyer(ctx, e.BuyerID, "Payment received", body, data); err != nil {
		return fmt.Errorf("notifying buyer: %w", err)
	}

	return nil
}

func (h Handler) NotifyBuyerCancelled(ctx context.Context, e *event.OrderCancelled) error {
	data := map[string]string{
		"type":     "order_cancelled",
		"order_id": e.OrderID,
		"event_id": e.EventID,
	}

	if err := h.notifier.NotifyBuyer(ctx, e.BuyerID, "Order cancelled", "Your order was cancelled: "+e.Reason, data); err != nil {
		return fmt.Errorf("notifying buyer: %w", err)
	}

	return nil
}

func (h Handler) BroadcastAttendance(ctx context.Context, e *event.OrderRedeemed) error {
	if err := h.changes.Notify(ctx, live.AttendanceTopic(e.EventID)); err != nil {
		return fmt.Errorf("broadcasting attendance change: %w", err)
	}
	return nil
}

func (h Handler) BroadcastTally(ctx context.Context, e *event.VoteRecorded) error {
	if err := h.changes.Notify(ctx, live.TallyTopic(e.EventID)); err != nil {
		return fmt.Errorf("broadcasting tally change: %w", err)
	}
	return nil
}

func (h Handler) RefundPayment(ctx context.Context, cmd *command.RefundPayment) error {
	logger := log.FromContext(ctx).WithField("payment_reference", cmd.PaymentReference)

	err := h.refunder.Refund(ctx, cmd.Method, cmd.ProviderReference, cmd.Amount, cmd.Header.IdempotencyKey)

	var manual interface{ ManualRefund() bool }
	if errors.As(err, &manual) && manual.ManualRefund() {
		logger.WithError(err).WithField("amount", cmd.Amount.Amount.String()+" "+cmd.Amount.Currency).
			Warn("Payment needs a manual refund")
		return nil
	}
	if err != nil {
		return fmt.Errorf("refunding payment: %w", err)
	}

	logger.WithField("reason", cmd.Reason).Info("Payment refunded")
	return nil
}
