package ioc

import (
	"fmt"

	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
)

func InitDB(cfg *config.Config, logger *zap.Logger) (*store.DB, func(), error) {
	db, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	logger.Info("database ready", zap.String("path", cfg.Database.Path))
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database failed", zap.Error(err))
		}
	}, nil
}
