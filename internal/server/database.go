package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	repo "github.com/joseph-ayodele/bills-assistant/internal/repository"
)

// ConnectDB opens the configured database, migrates the bills table and returns the
// repository over it.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, repo.BillRepository, error) {
	db, err := repo.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Migrate(ctx, db, logger); err != nil {
		db.Close(logger)
		return nil, nil, err
	}
	return db, repo.NewBillRepository(db, logger), nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repo.DB, logger *slog.Logger, timeout time.Duration) error {
	return db.HealthCheck(ctx, timeout, logger)
}

// CloseDB closes the database connections gracefully
func CloseDB(db *repo.DB, logger *slog.Logger) {
	db.Close(logger)
}
