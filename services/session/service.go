package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotAuthenticated = errors.New("no valid session")
	ErrSecretMissing    = errors.New("session secret is not configured")
	ErrSigningFailed    = errors.New("failed to sign session token")
)

type Service struct {
	config *config.Config
	db     *gorm.DB
	audit  *audit.Service
	logger *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		db:     db,
		audit:  auditSvc,
		logger: logger,
	}
}

// Create mints a new session for the user: a fresh session id, a signed
// token persisted against a server-side record, and the auth cookie on the
// response.
func (s *Service) Create(c echo.Context, user UserData) (string, error) {
	token, _, err := s.mint(c, user)
	return token, err
}

func (s *Service) mint(c echo.Context, user UserData) (string, *Data, error) {
	if s.config.Session.Secret == "" {
		return "", nil, ErrSecretMissing
	}

	now := time.Now()
	sessionID := uuid.New().String()
	expiresAt := now.Add(s.config.Session.Expiry)

	claims := Claims{
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      string(user.Role),
		Name:      user.Name,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   fmt.Sprintf("%d", user.UserID),
			Issuer:    s.config.App.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Session.Secret))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign session token", zap.Error(err))
		}
		return "", nil, ErrSigningFailed
	}

	record := &Session{
		ID:             sessionID,
		UserID:         user.UserID,
		Token:          tokenString,
		Role:           user.Role,
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
		Active:         true,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
	}

	if err := s.db.Create(record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to persist session record",
				zap.Error(err),
				zap.Uint("user_id", user.UserID))
		}
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.setCookie(c, tokenString, expiresAt)

	s.audit.SessionCreated(user.UserID, user.Email, string(user.Role), sessionID, requestInfo(c))

	if s.logger != nil {
		s.logger.Info("session created",
			zap.Uint("user_id", user.UserID),
			zap.String("session_id", sessionID),
			zap.Time("expires_at", expiresAt))
	}
	return tokenString, &Data{
		SessionID: sessionID,
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      user.Role,
		Name:      user.Name,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate resolves the request's auth cookie to session data, or nil when
// the request is unauthenticated. The server-side record is checked
// independently of the token's own expiry claim; any ambiguous state is
// healed by destroying the residual session rather than leaving it
// dangling.
func (s *Service) Validate(c echo.Context) *Data {
	cookie, err := c.Cookie(s.config.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims, err := s.parseToken(cookie.Value)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("session token rejected", zap.Error(err))
		}
		s.clearCookie(c)
		return nil
	}

	var record Session
	if err := s.db.Where("id = ?", claims.SessionID).First(&record).Error; err != nil {
		s.clearCookie(c)
		return nil
	}

	if !record.Active {
		s.clearCookie(c)
		return nil
	}

	if time.Now().After(record.ExpiresAt) {
		s.deactivate(&record)
		s.audit.SessionExpired(record.UserID, record.ID)
		s.clearCookie(c)
		return nil
	}

	if err := s.db.Model(&Session{}).
		Where("id = ?", record.ID).
		Update("last_activity_at", time.Now()).Error; err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to update session activity", zap.Error(err))
		}
	}

	return &Data{
		SessionID: claims.SessionID,
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      users.Role(claims.Role),
		Name:      claims.Name,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: record.ExpiresAt,
	}
}

// Destroy logs the session out: the server-side record is deactivated on a
// best-effort basis (an undecodable token is tolerated) and the cookie is
// always cleared.
func (s *Service) Destroy(c echo.Context) {
	cookie, err := c.Cookie(s.config.Session.CookieName)
	if err == nil && cookie.Value != "" {
		if claims, err := s.parseTokenLenient(cookie.Value); err == nil {
			var record Session
			if err := s.db.Where("id = ?", claims.SessionID).First(&record).Error; err == nil && record.Active {
				s.deactivate(&record)
				s.audit.Logout(record.UserID, claims.Email, requestInfo(c))
			}
		}
	}

	s.clearCookie(c)
}

// Refresh mints a brand-new session carrying forward the current identity
// and deactivates the prior session record, so the superseded token cannot
// remain independently valid. It returns the fresh session's data; the
// request cookie still carries the superseded token, so callers must not
// re-validate the request after a refresh.
func (s *Service) Refresh(c echo.Context) (*Data, error) {
	data := s.Validate(c)
	if data == nil {
		return nil, ErrNotAuthenticated
	}

	_, fresh, err := s.mint(c, UserData{
		UserID: data.UserID,
		Email:  data.Email,
		Role:   data.Role,
		Name:   data.Name,
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(&Session{}).
		Where("id = ? AND active = ?", data.SessionID, true).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": time.Now(),
		}).Error; err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to deactivate superseded session",
				zap.Error(err),
				zap.String("session_id", data.SessionID))
		}
	}

	return fresh, nil
}

// ActiveSessions lists a user's live sessions, most recently used first,
// with device summaries for display.
func (s *Service) ActiveSessions(userID uint) ([]Info, error) {
	var records []Session
	err := s.db.Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("last_activity_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	infos := make([]Info, 0, len(records))
	for _, record := range records {
		ua := useragent.Parse(record.UserAgent)

		browser := ua.Name
		if browser == "" {
			browser = "Unknown Browser"
		}
		os := ua.OS
		if os == "" {
			os = "Unknown OS"
		}

		infos = append(infos, Info{
			ID:             record.ID,
			UserID:         record.UserID,
			Browser:        browser,
			OS:             os,
			IPAddress:      record.IPAddress,
			LastActivityAt: record.LastActivityAt,
			ExpiresAt:      record.ExpiresAt,
			CreatedAt:      record.CreatedAt,
		})
	}

	return infos, nil
}

// RevokeAll deactivates every active session for a user, e.g. after a
// credential or account change. Returns the number revoked.
func (s *Service) RevokeAll(userID uint) (int64, error) {
	result := s.db.Model(&Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("all sessions revoked",
			zap.Uint("user_id", userID),
			zap.Int64("sessions_revoked", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// CleanupInactive purges session rows that have been deactivated or
// expired for longer than the retention window. Returns the number purged.
func (s *Service) CleanupInactive() (int64, error) {
	cutoff := time.Now().Add(-s.config.Session.InactiveRetention)

	result := s.db.
		Where("(active = ? AND deactivated_at < ?) OR expires_at < ?", false, cutoff, cutoff).
		Delete(&Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup inactive sessions: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("inactive sessions cleaned up", zap.Int64("sessions_removed", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) deactivate(record *Session) {
	now := time.Now()
	if err := s.db.Model(&Session{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": now,
		}).Error; err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to deactivate session",
				zap.Error(err),
				zap.String("session_id", record.ID))
		}
	}
}

func (s *Service) parseToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString)
}

// parseTokenLenient accepts expired tokens so logout can still locate the
// session record. The signature must still verify.
func (s *Service) parseTokenLenient(tokenString string) (*Claims, error) {
	return s.parse(tokenString, jwt.WithoutClaimsValidation())
}

func (s *Service) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
		}
		return []byte(s.config.Session.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.SessionID == "" {
		return nil, errors.New("invalid session claims")
	}

	return claims, nil
}

func (s *Service) setCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.config.App.IsProduction(),
		SameSite: mapSameSite(s.config.Session.SameSite),
	})
}

func (s *Service) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.App.IsProduction(),
		SameSite: mapSameSite(s.config.Session.SameSite),
	})
}

func mapSameSite(setting string) http.SameSite {
	switch setting {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func requestInfo(c echo.Context) *audit.RequestInfo {
	return &audit.RequestInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
