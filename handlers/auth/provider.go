package auth

import (
	"github.com/tasklinker/authcore/server"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(handler *Handler, srv *server.Server) {
		handler.RegisterRoutes(srv.Echo())
	}),
)
