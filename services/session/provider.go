package session

import (
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideSessionService(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service) *Service {
	return NewService(cfg, db, auditSvc, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideSessionService),
)
