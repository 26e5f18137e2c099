package audit

import (
	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideAuditService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideAuditService),
)
