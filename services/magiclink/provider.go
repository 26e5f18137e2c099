package magiclink

import (
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/users"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideMagicLinkService(cfg *config.Config, db *gorm.DB, userStore users.Store, limiter *ratelimit.Service, auditSvc *audit.Service, logger *logging.Service) *Service {
	return NewService(cfg, db, userStore, limiter, auditSvc, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideMagicLinkService),
)
