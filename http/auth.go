package http

import (
	"context"
	"net/http"
	"strings"

	"eventhub/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
)

type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (entity.Buyer, error)
}

const buyerContextKey = "buyer"

func authMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return &echo.HTTPError{
					Code:    http.StatusUnauthorized,
					Message: "missing bearer token",
				}
			}

			ctx := c.Request().Context()
			buyer, err := auth.Authenticate(ctx, strings.TrimSpace(token))
			if err != nil {
				return &echo.HTTPError{
					Code:     http.StatusUnauthorized,
					Message:  "invalid bearer token",
					Internal: err,
				}
			}

			c.Set(buyerContextKey, buyer)
			ctx = log.ToContext(ctx, log.FromContext(ctx).WithField("buyer_id", buyer.ID))
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func buyerFrom(c echo.Context) entity.Buyer {
	buyer, _ := c.Get(buyerContextKey).(entity.Buyer)
	return buyer
}
