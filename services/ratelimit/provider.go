package ratelimit

import (
	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRateLimitService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitService),
)
