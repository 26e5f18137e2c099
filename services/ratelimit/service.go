package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRecordNotFound = errors.New("rate limit record not found")

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// CheckAllowed reports whether the identifier may perform the action and
// counts this attempt. The counter increment happens storage-side so
// concurrent attempts from multiple instances never lose updates. Any
// storage failure denies the attempt: the limiter fails closed.
func (s *Service) CheckAllowed(identifier, action string, maxAttempts int, window time.Duration) bool {
	now := time.Now()

	record, err := s.find(identifier, action)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			if s.logger != nil {
				s.logger.Error("rate limit lookup failed, denying attempt",
					zap.Error(err),
					zap.String("action", action))
			}
			return false
		}

		if err := s.createFirstAttempt(identifier, action, now); err != nil {
			if s.logger != nil {
				s.logger.Error("rate limit record creation failed, denying attempt",
					zap.Error(err),
					zap.String("action", action))
			}
			return false
		}
		return true
	}

	if record.BlockedUntil != nil && now.Before(*record.BlockedUntil) {
		return false
	}

	if now.Sub(record.WindowStartedAt) >= window {
		if err := s.resetWindow(record.ID, now); err != nil {
			if s.logger != nil {
				s.logger.Error("rate limit window reset failed, denying attempt",
					zap.Error(err),
					zap.String("action", action))
			}
			return false
		}
		return true
	}

	attempts, err := s.increment(record.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("rate limit increment failed, denying attempt",
				zap.Error(err),
				zap.String("action", action))
		}
		return false
	}

	if attempts > maxAttempts {
		blockedUntil := now.Add(window)
		if err := s.db.Model(&RateLimitRecord{}).
			Where("id = ?", record.ID).
			Update("blocked_until", blockedUntil).Error; err != nil {
			if s.logger != nil {
				s.logger.Error("failed to set rate limit block",
					zap.Error(err),
					zap.String("action", action))
			}
		}

		if s.logger != nil {
			s.logger.Warn("rate limit exceeded",
				zap.String("action", action),
				zap.Int("attempts", attempts),
				zap.Int("max_attempts", maxAttempts),
				zap.Time("blocked_until", blockedUntil))
		}
		return false
	}

	return true
}

// BlockTimeRemaining returns how long the identifier stays blocked for the
// action, or zero when it is not blocked. Intended for user-facing
// "try again in N minutes" messaging.
func (s *Service) BlockTimeRemaining(identifier, action string) time.Duration {
	record, err := s.find(identifier, action)
	if err != nil {
		return 0
	}

	if record.BlockedUntil == nil {
		return 0
	}

	remaining := time.Until(*record.BlockedUntil)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// Reset clears the attempt counter and any block for the identifier/action
// pair. Administrative operation.
func (s *Service) Reset(identifier, action string) error {
	result := s.db.Where("identifier = ? AND action = ?", identifier, action).Delete(&RateLimitRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to reset rate limit: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("rate limit reset",
			zap.String("action", action),
			zap.Int64("records_removed", result.RowsAffected))
	}
	return nil
}

// Status returns the current record for the identifier/action pair without
// counting an attempt.
func (s *Service) Status(identifier, action string) (*RateLimitRecord, error) {
	return s.find(identifier, action)
}

// CleanupStale removes records that have not been touched for the given
// duration and are not under an active block. Returns the number removed.
func (s *Service) CleanupStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.
		Where("updated_at < ? AND (blocked_until IS NULL OR blocked_until < ?)", cutoff, time.Now()).
		Delete(&RateLimitRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup stale rate limit records: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Debug("stale rate limit records removed", zap.Int64("records_removed", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) find(identifier, action string) (*RateLimitRecord, error) {
	var record RateLimitRecord
	if err := s.db.Where("identifier = ? AND action = ?", identifier, action).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load rate limit record: %w", err)
	}

	return &record, nil
}

func (s *Service) createFirstAttempt(identifier, action string, now time.Time) error {
	record := &RateLimitRecord{
		Identifier:      identifier,
		Action:          action,
		Attempts:        1,
		WindowStartedAt: now,
	}

	// Two concurrent first attempts race on the unique index; the loser
	// falls back to incrementing the winner's row so the attempt still
	// counts.
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identifier"}, {Name: "action"}},
		DoUpdates: clause.Assignments(map[string]any{
			"attempts": gorm.Expr("attempts + ?", 1),
		}),
	}).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create rate limit record: %w", err)
	}

	return nil
}

func (s *Service) resetWindow(recordID uint, now time.Time) error {
	err := s.db.Model(&RateLimitRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"attempts":          1,
			"window_started_at": now,
			"blocked_until":     nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}

	return nil
}

func (s *Service) increment(recordID uint) (int, error) {
	err := s.db.Model(&RateLimitRecord{}).
		Where("id = ?", recordID).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	var record RateLimitRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		return 0, fmt.Errorf("failed to reload rate limit record: %w", err)
	}

	return record.Attempts, nil
}
