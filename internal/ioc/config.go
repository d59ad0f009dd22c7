package ioc

import (
	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/logging"
	"go.uber.org/zap"
)

// ConfigPath is the optional config file given on the command line.
type ConfigPath string

func InitConfig(path ConfigPath) (*config.Config, error) {
	return config.Load(string(path))
}

func InitLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}
