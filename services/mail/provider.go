package mail

import (
	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/magiclink"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Mail, cfg.App.Name, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
	fx.Invoke(func(mailSvc *Service, magicLinkSvc *magiclink.Service) {
		magicLinkSvc.SetSender(mailSvc)
	}),
)
