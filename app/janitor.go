package app

import (
	"context"
	"time"

	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/magiclink"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Janitor runs the periodic retention sweeps: expired magic link tokens,
// long-inactive sessions and stale rate limit records.
type Janitor struct {
	config     *config.Config
	magicLinks *magiclink.Service
	sessions   *session.Service
	limiter    *ratelimit.Service
	logger     *logging.Service
	stop       chan struct{}
	done       chan struct{}
}

func NewJanitor(cfg *config.Config, magicLinks *magiclink.Service, sessions *session.Service, limiter *ratelimit.Service, logger *logging.Service) *Janitor {
	return &Janitor{
		config:     cfg,
		magicLinks: magicLinks,
		sessions:   sessions,
		limiter:    limiter,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (j *Janitor) Start() {
	go j.run()
}

func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}

func (j *Janitor) run() {
	defer close(j.done)

	interval := j.config.Janitor.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stop:
			return
		}
	}
}

// Sweep runs one pass of every cleanup. Each sweep is idempotent, so a
// failed pass is simply retried on the next tick.
func (j *Janitor) Sweep() {
	if removed, err := j.magicLinks.CleanupExpired(); err != nil {
		j.logger.Error("magic link cleanup failed", zap.Error(err))
	} else if removed > 0 {
		j.logger.Debug("magic link cleanup done", zap.Int64("removed", removed))
	}

	if removed, err := j.sessions.CleanupInactive(); err != nil {
		j.logger.Error("session cleanup failed", zap.Error(err))
	} else if removed > 0 {
		j.logger.Debug("session cleanup done", zap.Int64("removed", removed))
	}

	if removed, err := j.limiter.CleanupStale(j.config.Auth.RequestWindow * 2); err != nil {
		j.logger.Error("rate limit cleanup failed", zap.Error(err))
	} else if removed > 0 {
		j.logger.Debug("rate limit cleanup done", zap.Int64("removed", removed))
	}
}

var JanitorModule = fx.Options(
	fx.Provide(NewJanitor),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, janitor *Janitor) {
		if !cfg.Janitor.Enabled {
			return
		}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				janitor.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				janitor.Stop()
				return nil
			},
		})
	}),
)
