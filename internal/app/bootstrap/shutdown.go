// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the background jobs and the email worker, then closes the
// MongoDB client.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Scheduler != nil {
			rt.Scheduler.Stop()
		}
		rt.Notifier.Stop()
		if rt.RegisterLimiter != nil {
			rt.RegisterLimiter.Stop()
		}
		if rt.AdminLimiter != nil {
			rt.AdminLimiter.Stop()
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting PeerFinder MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
