package authcore

import (
	"github.com/tasklinker/authcore/app"
	"github.com/tasklinker/authcore/config"
)

type App = app.App

// New starts a builder for the Tasklinker authentication core.
func New() *app.Builder {
	return app.New()
}

func LoadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
