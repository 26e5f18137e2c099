package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tasklinker/authcore/config"
	mwratelimit "github.com/tasklinker/authcore/middleware/ratelimit"
	"github.com/tasklinker/authcore/middleware/sessionauth"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/magiclink"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/session"
	"github.com/tasklinker/authcore/services/users"
)

type Handler struct {
	config     *config.Config
	magicLinks *magiclink.Service
	sessions   *session.Service
	limiter    *ratelimit.Service
	audit      *audit.Service
}

func NewHandler(cfg *config.Config, magicLinks *magiclink.Service, sessions *session.Service, limiter *ratelimit.Service, auditSvc *audit.Service) *Handler {
	return &Handler{
		config:     cfg,
		magicLinks: magicLinks,
		sessions:   sessions,
		limiter:    limiter,
		audit:      auditSvc,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	group := e.Group("/auth")

	// The magic link service rate-limits per email/token; the route-level
	// limiter adds a coarser per-IP backstop.
	ipLimit := mwratelimit.Middleware(&mwratelimit.Config{
		Limiter:     h.limiter,
		Action:      "auth_endpoint",
		MaxAttempts: 30,
		Window:      15 * time.Minute,
	})

	group.POST("/magic-link", h.RequestMagicLink, ipLimit)
	group.POST("/verify", h.VerifyMagicLink, ipLimit)
	group.GET("/session", h.CurrentSession)
	group.POST("/refresh", h.RefreshSession)
	group.POST("/logout", h.Logout)

	admin := group.Group("/admin", sessionauth.RequireRole(h.sessions, users.RoleAdmin))
	admin.GET("/audit", h.AuditLog)
	admin.GET("/sessions/:user_id", h.UserSessions)
	admin.DELETE("/sessions/:user_id", h.RevokeUserSessions)
	admin.POST("/rate-limit/reset", h.ResetRateLimit)
	admin.GET("/rate-limit/status", h.RateLimitStatus)
}

type magicLinkRequest struct {
	Email    string             `json:"email"`
	Role     users.Role         `json:"role"`
	Type     magiclink.LinkType `json:"type"`
	Metadata map[string]string  `json:"metadata,omitempty"`
}

func (h *Handler) RequestMagicLink(c echo.Context) error {
	var req magicLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Email == "" || !users.ValidRole(req.Role) || !magiclink.ValidLinkType(req.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "email, role and type are required")
	}

	record, err := h.magicLinks.Request(req.Email, req.Role, req.Type, req.Metadata, requestInfo(c))
	if err != nil {
		return h.magicLinkError(c, err)
	}

	response := map[string]any{
		"message":    "magic link sent",
		"expires_at": record.ExpiresAt,
	}
	if !h.config.App.IsProduction() {
		response["token"] = record.Token
	}

	return c.JSON(http.StatusAccepted, response)
}

type verifyRequest struct {
	Token string     `json:"token"`
	Role  users.Role `json:"role"`
}

func (h *Handler) VerifyMagicLink(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Token == "" || !users.ValidRole(req.Role) {
		return echo.NewHTTPError(http.StatusBadRequest, "token and role are required")
	}

	identity, err := h.magicLinks.Verify(req.Token, req.Role, requestInfo(c))
	if err != nil {
		return h.magicLinkError(c, err)
	}

	if _, err := h.sessions.Create(c, session.UserData{
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
		Name:   identity.Name,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}

	return c.JSON(http.StatusOK, map[string]any{"user": identity})
}

func (h *Handler) CurrentSession(c echo.Context) error {
	data := h.sessions.Validate(c)
	if data == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	return c.JSON(http.StatusOK, data)
}

func (h *Handler) RefreshSession(c echo.Context) error {
	data, err := h.sessions.Refresh(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	return c.JSON(http.StatusOK, data)
}

func (h *Handler) Logout(c echo.Context) error {
	h.sessions.Destroy(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AuditLog(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	if email := c.QueryParam("email"); email != "" {
		hours, err := strconv.Atoi(c.QueryParam("hours"))
		if err != nil || hours <= 0 {
			hours = 24
		}

		entries, err := h.audit.FailedAttempts(email, time.Now().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to query audit log")
		}
		return c.JSON(http.StatusOK, entries)
	}

	if userIDParam := c.QueryParam("user_id"); userIDParam != "" {
		userID, err := strconv.ParseUint(userIDParam, 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}

		entries, err := h.audit.ForUser(uint(userID), limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to query audit log")
		}
		return c.JSON(http.StatusOK, entries)
	}

	entries, err := h.audit.Recent(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query audit log")
	}

	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) UserSessions(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
	}

	sessions, err := h.sessions.ActiveSessions(uint(userID))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}

	return c.JSON(http.StatusOK, sessions)
}

func (h *Handler) RevokeUserSessions(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
	}

	revoked, err := h.sessions.RevokeAll(uint(userID))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke sessions")
	}

	return c.JSON(http.StatusOK, map[string]any{"revoked": revoked})
}

type rateLimitResetRequest struct {
	Identifier string `json:"identifier"`
	Action     string `json:"action"`
}

func (h *Handler) ResetRateLimit(c echo.Context) error {
	var req rateLimitResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Identifier == "" || req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and action are required")
	}

	if err := h.limiter.Reset(req.Identifier, req.Action); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset rate limit")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RateLimitStatus(c echo.Context) error {
	identifier := c.QueryParam("identifier")
	action := c.QueryParam("action")
	if identifier == "" || action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and action are required")
	}

	record, err := h.limiter.Status(identifier, action)
	if err != nil {
		if err == ratelimit.ErrRecordNotFound {
			return c.JSON(http.StatusOK, map[string]any{"attempts": 0})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query rate limit status")
	}

	return c.JSON(http.StatusOK, record)
}

// magicLinkError maps error codes to HTTP statuses. Infrastructure errors
// surface only a generic message; the detail stays in the server logs.
func (h *Handler) magicLinkError(c echo.Context, err error) error {
	mlErr, ok := err.(*magiclink.Error)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(magiclink.ErrInternalError))
	}

	status := http.StatusInternalServerError
	switch mlErr.Code {
	case magiclink.CodeRateLimitExceeded:
		status = http.StatusTooManyRequests
		if mlErr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(mlErr.RetryAfter.Seconds())))
		}
	case magiclink.CodeUserNotFound:
		status = http.StatusNotFound
	case magiclink.CodeUserExists:
		status = http.StatusConflict
	case magiclink.CodeUserTypeMismatch, magiclink.CodeAccountInactive:
		status = http.StatusForbidden
	case magiclink.CodeInvalidToken, magiclink.CodeExpired, magiclink.CodeAlreadyUsed:
		status = http.StatusUnauthorized
	}

	return c.JSON(status, errorBody(mlErr))
}

func errorBody(err *magiclink.Error) map[string]any {
	body := map[string]any{
		"error": map[string]any{
			"code":    err.Code,
			"message": err.Message,
		},
	}
	if err.RetryAfter > 0 {
		body["error"].(map[string]any)["retry_after_seconds"] = int(err.RetryAfter.Seconds())
	}
	return body
}

func requestInfo(c echo.Context) *audit.RequestInfo {
	return &audit.RequestInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
