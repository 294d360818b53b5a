package bootstrap

import (
	"context"
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/database"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

func (a *App) setupDatabase() error {
	conn, err := database.NewConnection(&a.Config.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	a.DB = conn
	a.Repository = database.NewRepository(conn.DB)
	a.Logger.Info("Database connected",
		infralogger.String("host", a.Config.Database.Host),
		infralogger.String("database", a.Config.Database.Database),
	)
	return nil
}

// setupLocker uses Redis locks when Redis is configured and reachable, so
// several instances share one ingest and one analyze at a time. Otherwise
// locks are local to the process.
func (a *App) setupLocker(ctx context.Context) {
	if !a.Config.Redis.Enabled() {
		a.Locker = service.NewLocalLocker()
		a.Logger.Info("Redis not configured, using in-process locks")
		return
	}

	client, err := infraredis.NewClient(ctx, infraredis.Config{
		Address:  a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err != nil {
		a.Locker = service.NewLocalLocker()
		a.Logger.Warn("Redis not available, using in-process locks", infralogger.Error(err))
		return
	}

	a.Redis = client
	a.Locker = service.NewRedisLocker(client)
	a.Logger.Info("Redis locks enabled", infralogger.String("redis_address", a.Config.Redis.Address))
}
