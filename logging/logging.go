// Package logging builds the process-wide zap logger, wiring Sentry error
// capture the way the teacher's cmd/host entrypoint does: a zapsentry core
// attached so that Error-level log calls are transparently reported without
// call sites importing sentry-go themselves.
package logging

import (
	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/config"
)

// New builds the logger for cfg.Env. Production uses the JSON encoder;
// anything else uses the human-readable console encoder. When cfg.SentryDSN
// is set, Error+ log entries are additionally reported to Sentry.
func New(cfg config.Config) (*zap.Logger, error) {
	var base *zap.Logger
	var err error
	if cfg.Env == "production" {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN == "" {
		return base, nil
	}

	if initErr := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Env,
	}); initErr != nil {
		base.Warn("sentry init failed, continuing without error capture")
		return base, nil
	}

	sentryCore, err := zapsentry.NewCore(zapsentry.Configuration{
		Level: zap.ErrorLevel,
	}, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		base.Warn("zapsentry core construction failed, continuing without error capture")
		return base, nil
	}

	return zapsentry.AttachCoreToLogger(sentryCore, base), nil
}
