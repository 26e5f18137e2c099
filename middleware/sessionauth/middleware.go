package sessionauth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tasklinker/authcore/services/session"
	"github.com/tasklinker/authcore/services/users"
)

const (
	SessionKey = "_session"
)

// RequireSession rejects requests without a valid session and stores the
// session data in the echo context for handlers.
func RequireSession(sessionService *session.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			data := sessionService.Validate(c)
			if data == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			c.Set(SessionKey, data)

			return next(c)
		}
	}
}

// RequireRole additionally restricts the route to sessions holding the
// given role.
func RequireRole(sessionService *session.Service, role users.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			data := sessionService.Validate(c)
			if data == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			if data.Role != role {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
			}

			c.Set(SessionKey, data)

			return next(c)
		}
	}
}

func GetSession(c echo.Context) *session.Data {
	if data, ok := c.Get(SessionKey).(*session.Data); ok {
		return data
	}
	return nil
}

func GetUserID(c echo.Context) uint {
	if data := GetSession(c); data != nil {
		return data.UserID
	}
	return 0
}
