package server

import (
	"context"

	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(ProvideServer),
	fx.Invoke(RegisterLifecycle),
)

func ProvideServer(cfg *config.Config, logger *logging.Service) *Server {
	return New(cfg, logger)
}

func RegisterLifecycle(lc fx.Lifecycle, srv *Server, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
