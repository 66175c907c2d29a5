package migrate

import (
	"context"
	"fmt"

	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/db"
	"github.com/corpalert/corpalert-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date on boot when
// CORPALERT_AUTO_MIGRATE is set. Other environments migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "trigger", "dev_autorun")
	return runner.Exec(ctx, CmdUp, "")
}
