package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"rigshop-api/internal/config"
)

// Open builds the Table backend selected by cfg.Type.
func Open(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (Table, error) {
	logger = logger.With(zap.String("store", cfg.Type))

	switch cfg.Type {
	case "memory":
		logger.Warn("using in-memory table, data is lost on restart")
		return NewMemoryTable(), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return NewSQLiteTable(cfg.Path, cfg.Table, logger)

	case "postgres":
		return NewPostgresTable(cfg.PostgresDSN(), cfg.Table, logger)

	case "mysql":
		return NewMySQLTable(cfg.MySQLDSN(), cfg.Table, logger)

	case "mongodb":
		return NewMongoDBTable(cfg.MongoURI, cfg.MongoDatabase, cfg.Table, logger)

	case "dynamodb":
		client, err := NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBTable(ctx, client, cfg.Table, logger)

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
