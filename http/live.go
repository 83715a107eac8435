package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"eventhub/entity"
	"eventhub/live"

	"github.com/labstack/echo/v4"
)

func (h handler) StreamAttendance(c echo.Context) error {
	eventID := c.Param("event_id")
	if _, err := h.events.Event(c.Request().Context(), eventID); err != nil {
		return lookupError("event", err)
	}

	return stream(c, h.hub, live.AttendanceTopic(eventID), func(ctx context.Context) (entity.Attendance, error) {
		return h.events.Attendance(ctx, eventID)
	})
}

func (h handler) StreamTally(c echo.Context) error {
	eventID := c.Param("event_id")
	if _, err := h.events.Event(c.Request().Context(), eventID); err != nil {
		return lookupError("event", err)
	}

	return stream(c, h.hub, live.TallyTopic(eventID), func(ctx context.Context) ([]entity.ContestantTally, error) {
		return h.events.Tally(ctx, eventID)
	})
}

// stream pushes the state of topic to the client as server-sent events until
// the client disconnects.
func stream[T any](c echo.Context, hub *live.Hub, topic string, load func(context.Context) (T, error)) error {
	ctx := c.Request().Context()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")

	sub, err := live.Subscribe(ctx, hub, topic, load, func(state T) error {
		return writeEvent(w, state)
	})
	if err != nil {
		if w.Committed {
			return nil
		}
		return &echo.HTTPError{
			Code:     http.StatusInternalServerError,
			Message:  "operation failed, retry",
			Internal: fmt.Errorf("subscribing to %s: %w", topic, err),
		}
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
	case <-sub.Done():
	}

	return nil
}

func writeEvent(w *echo.Response, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling live state: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()

	return nil
}
