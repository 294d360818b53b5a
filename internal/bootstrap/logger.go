package bootstrap

import (
	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
)

// CreateLogger builds the service logger tagged with name and version.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	log, err := infralogger.New(infralogger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, err
	}

	return log.With(
		infralogger.String("service", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
	), nil
}
