package app

import (
	"fmt"

	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/database"
	authhandler "github.com/tasklinker/authcore/handlers/auth"
	"github.com/tasklinker/authcore/server"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/magiclink"
	"github.com/tasklinker/authcore/services/mail"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/session"
	"github.com/tasklinker/authcore/services/users"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Builder struct {
	config    *config.Config
	models    []any
	fxOptions []fx.Option
	withMail  bool
	errors    []error
}

func New() *Builder {
	return &Builder{
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	if cfg == nil {
		b.errors = append(b.errors, fmt.Errorf("config cannot be nil"))
		return b
	}
	b.config = cfg
	return b
}

func (b *Builder) WithAutoConfig() *Builder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.errors = append(b.errors, fmt.Errorf("failed to load config: %w", err))
		return b
	}
	b.config = cfg
	return b
}

// WithModels registers additional models for auto-migration alongside the
// auth core's own.
func (b *Builder) WithModels(models ...any) *Builder {
	b.models = append(b.models, models...)
	return b
}

func (b *Builder) WithMail() *Builder {
	b.withMail = true
	return b
}

func (b *Builder) WithFxOptions(opts ...fx.Option) *Builder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

// CoreModels are the records the authentication core owns.
func CoreModels() []any {
	return []any{
		&users.User{},
		&magiclink.MagicLinkToken{},
		&ratelimit.RateLimitRecord{},
		&audit.Entry{},
		&session.Session{},
	}
}

func (b *Builder) Build() (*App, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.config == nil {
		b.WithAutoConfig()
		if len(b.errors) > 0 {
			return nil, fmt.Errorf("configuration errors: %v", b.errors)
		}
	}

	logger, err := logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	models := append(CoreModels(), b.models...)

	app := &App{
		config: b.config,
		logger: logger,
	}

	options := []fx.Option{
		config.NewProvider(b.config),
		fx.Supply(logger),
		fx.Supply(database.WithModels(models...)),
		fx.NopLogger,
		database.Module,
		users.Module,
		ratelimit.Module,
		audit.Module,
		magiclink.Module,
		session.Module,
		server.Module,
		authhandler.Module,
		JanitorModule,
	}

	if b.withMail {
		options = append(options, mail.Module)
	}

	options = append(options, b.fxOptions...)

	options = append(options, fx.Invoke(func(srv *server.Server, db *gorm.DB) {
		app.server = srv
		app.db = db
	}))

	app.fx = fx.New(options...)

	return app, nil
}
