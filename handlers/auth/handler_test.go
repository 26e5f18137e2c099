package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/magiclink"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/session"
	"github.com/tasklinker/authcore/services/users"
	"github.com/tasklinker/authcore/testutils"
	"gorm.io/gorm"
)

type handlerEnv struct {
	cfg      *config.Config
	db       *gorm.DB
	echo     *echo.Echo
	users    users.Store
	sessions *session.Service
}

func setupHandler(t *testing.T) *handlerEnv {
	db := testutils.SetupTestDB(t,
		&users.User{}, &magiclink.MagicLinkToken{}, &ratelimit.RateLimitRecord{},
		&audit.Entry{}, &session.Session{})
	cfg := testutils.GetTestConfig()

	userStore := users.NewStore(db)
	limiter := ratelimit.NewService(db, nil)
	auditSvc := audit.NewService(db, nil)
	magicLinks := magiclink.NewService(cfg, db, userStore, limiter, auditSvc, nil)
	sessions := session.NewService(cfg, db, auditSvc, nil)

	e := echo.New()
	NewHandler(cfg, magicLinks, sessions, limiter, auditSvc).RegisterRoutes(e)

	return &handlerEnv{cfg: cfg, db: db, echo: e, users: userStore, sessions: sessions}
}

func (env *handlerEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *handlerEnv) seedUser(t *testing.T, email string, role users.Role) *users.User {
	user := &users.User{Email: email, Name: "Seeded", Role: role, Active: true, Verified: true}
	require.NoError(t, env.users.Create(user))
	return user
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	return errObj["code"].(string)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "tl-auth-token" && cookie.Value != "" {
			return cookie
		}
	}
	return nil
}

// requestLink walks the magic link flow far enough to get a token back,
// which non-production responses include for development.
func (env *handlerEnv) requestLink(t *testing.T, email string, role users.Role, linkType string) string {
	rec := env.do(http.MethodPost, "/auth/magic-link",
		fmt.Sprintf(`{"email":%q,"role":%q,"type":%q}`, email, role, linkType))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	token, ok := decode(t, rec)["token"].(string)
	require.True(t, ok, "non-production responses include the token")
	return token
}

func (env *handlerEnv) login(t *testing.T, email string, role users.Role) *http.Cookie {
	token := env.requestLink(t, email, role, "login")
	rec := env.do(http.MethodPost, "/auth/verify",
		fmt.Sprintf(`{"token":%q,"role":%q}`, token, role))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func TestRequestMagicLink(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"alice@example.com","role":"freelancer","type":"login"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["expires_at"])
}

func TestRequestMagicLink_ProductionOmitsToken(t *testing.T) {
	env := setupHandler(t)
	env.cfg.App.Environment = "production"
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"alice@example.com","role":"freelancer","type":"login"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	_, present := decode(t, rec)["token"]
	assert.False(t, present)
}

func TestRequestMagicLink_Validation(t *testing.T) {
	env := setupHandler(t)

	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/auth/magic-link", `{"email":"","role":"client","type":"login"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/auth/magic-link", `{"email":"a@b.c","role":"superuser","type":"login"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/auth/magic-link", `{"email":"a@b.c","role":"client","type":"reset"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/auth/magic-link", `not json`).Code)
}

func TestRequestMagicLink_ErrorStatuses(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "taken@example.com", users.RoleClient)
	env.seedUser(t, "freelancer@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"ghost@example.com","role":"client","type":"login"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(t, rec))

	rec = env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"taken@example.com","role":"client","type":"signup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_EXISTS", errorCode(t, rec))

	rec = env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"freelancer@example.com","role":"client","type":"login"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "USER_TYPE_MISMATCH", errorCode(t, rec))
}

func TestRequestMagicLink_RateLimited(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	payload := `{"email":"alice@example.com","role":"freelancer","type":"login"}`
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/auth/magic-link", payload).Code)
	}

	rec := env.do(http.MethodPost, "/auth/magic-link", payload)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestVerifyMagicLink_CreatesSession(t *testing.T) {
	env := setupHandler(t)
	alice := env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	token := env.requestLink(t, "alice@example.com", users.RoleFreelancer, "login")
	rec := env.do(http.MethodPost, "/auth/verify",
		fmt.Sprintf(`{"token":%q,"role":"freelancer"}`, token))

	require.Equal(t, http.StatusOK, rec.Code)

	user, ok := decode(t, rec)["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(alice.ID), user["user_id"])
	assert.Equal(t, "alice@example.com", user["email"])

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
}

func TestVerifyMagicLink_Signup(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(http.MethodPost, "/auth/magic-link",
		`{"email":"bob@example.com","role":"client","type":"signup","metadata":{"firstName":"Bob","lastName":"K"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = env.do(http.MethodPost, "/auth/verify",
		fmt.Sprintf(`{"token":%q,"role":"client"}`, token))
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := env.users.FindByEmail("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob K", user.Name)
}

func TestVerifyMagicLink_ErrorStatuses(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/verify", `{"token":"bogus","role":"client"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))

	token := env.requestLink(t, "alice@example.com", users.RoleFreelancer, "login")
	payload := fmt.Sprintf(`{"token":%q,"role":"freelancer"}`, token)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/auth/verify", payload).Code)

	rec = env.do(http.MethodPost, "/auth/verify", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))
}

func TestCurrentSession(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/session", "").Code)

	cookie := env.login(t, "alice@example.com", users.RoleFreelancer)
	rec := env.do(http.MethodGet, "/auth/session", "", cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "freelancer", body["role"])
}

func TestRefreshSession(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)
	cookie := env.login(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/refresh", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "alice@example.com", body["email"])

	// Exactly one auth cookie, and it is a live one, not a clearing one.
	var authCookies []*http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "tl-auth-token" {
			authCookies = append(authCookies, ck)
		}
	}
	require.Len(t, authCookies, 1)
	assert.Greater(t, authCookies[0].MaxAge, 0)

	fresh := authCookies[0]
	assert.NotEqual(t, cookie.Value, fresh.Value)

	// The superseded cookie is dead.
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/session", "", cookie).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/auth/session", "", fresh).Code)
}

func TestRefreshSession_Unauthenticated(t *testing.T) {
	env := setupHandler(t)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/auth/refresh", "").Code)
}

func TestLogout(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)
	cookie := env.login(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodPost, "/auth/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/session", "", cookie).Code)
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/auth/admin/audit", "").Code)

	cookie := env.login(t, "alice@example.com", users.RoleFreelancer)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/auth/admin/audit", "", cookie).Code)
}

func TestAdminAuditLog(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "admin@example.com", users.RoleAdmin)
	alice := env.seedUser(t, "alice@example.com", users.RoleFreelancer)
	admin := env.login(t, "admin@example.com", users.RoleAdmin)
	env.login(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodGet, "/auth/admin/audit?limit=5", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)
	assert.LessOrEqual(t, len(entries), 5)

	rec = env.do(http.MethodGet, fmt.Sprintf("/auth/admin/audit?user_id=%d", alice.ID), "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	for _, entry := range entries {
		require.NotNil(t, entry.UserID)
		assert.Equal(t, alice.ID, *entry.UserID)
	}

	// Failed attempts for an email with no failures.
	rec = env.do(http.MethodGet, "/auth/admin/audit?email=alice@example.com&hours=24", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)

	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodGet, "/auth/admin/audit?user_id=abc", "", admin).Code)
}

func TestAdminUserSessions(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "admin@example.com", users.RoleAdmin)
	alice := env.seedUser(t, "alice@example.com", users.RoleFreelancer)
	admin := env.login(t, "admin@example.com", users.RoleAdmin)
	env.login(t, "alice@example.com", users.RoleFreelancer)

	rec := env.do(http.MethodGet, fmt.Sprintf("/auth/admin/sessions/%d", alice.ID), "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Len(t, infos, 1)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/auth/admin/sessions/%d", alice.ID), "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["revoked"])

	rec = env.do(http.MethodGet, fmt.Sprintf("/auth/admin/sessions/%d", alice.ID), "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Empty(t, infos)

	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodGet, "/auth/admin/sessions/abc", "", admin).Code)
}

func TestAdminRateLimit(t *testing.T) {
	env := setupHandler(t)
	env.seedUser(t, "admin@example.com", users.RoleAdmin)
	env.seedUser(t, "alice@example.com", users.RoleFreelancer)
	admin := env.login(t, "admin@example.com", users.RoleAdmin)

	payload := `{"email":"alice@example.com","role":"freelancer","type":"login"}`
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/auth/magic-link", payload).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/auth/magic-link", payload).Code)

	rec := env.do(http.MethodGet,
		"/auth/admin/rate-limit/status?identifier=alice@example.com&action=magic_link_request", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, decode(t, rec)["attempts"], float64(10))

	rec = env.do(http.MethodPost, "/auth/admin/rate-limit/reset",
		`{"identifier":"alice@example.com","action":"magic_link_request"}`, admin)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/auth/magic-link", payload).Code)

	rec = env.do(http.MethodGet,
		"/auth/admin/rate-limit/status?identifier=nobody&action=magic_link_request", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["attempts"])

	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodGet, "/auth/admin/rate-limit/status", "", admin).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/auth/admin/rate-limit/reset", `{"identifier":""}`, admin).Code)
}
