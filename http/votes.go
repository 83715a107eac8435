package http

import (
	"net/http"

	"eventhub/entity"
	"eventhub/ticketing"

	"github.com/labstack/echo/v4"
)

type castVoteRequest struct {
	ContestantID string               `json:"contestant_id" validate:"required,uuid"`
	Count        int                  `json:"vote_count"`
	Method       entity.PaymentMethod `json:"method" validate:"required"`
}

func (h handler) CastVote(c echo.Context) error {
	var req castVoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	session, err := h.ballot.Cast(c.Request().Context(), ticketing.CastVote{
		EventID:      c.Param("event_id"),
		ContestantID: req.ContestantID,
		Voter:        buyerFrom(c),
		Count:        req.Count,
		Method:       req.Method,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, session)
}
