// Package bootstrap opens the plan store selected by configuration. The server
// and the sharectl maintenance tool share it so both see the same backend.
package bootstrap

import (
	"alcyxob/fitness-share/internal/config"
	"alcyxob/fitness-share/internal/repository"
	"alcyxob/fitness-share/internal/repository/filestore"
	"alcyxob/fitness-share/internal/repository/mongo"
	"alcyxob/fitness-share/internal/repository/postgres"
	"alcyxob/fitness-share/internal/storage"
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Store is an open plan store plus whatever has to be released on shutdown.
type Store struct {
	Repo repository.SharedPlanRepository
	// Files is set only for the file backend, which has maintenance operations of its own.
	Files *filestore.FileSharedPlanRepository

	closers []func()
}

// Close releases the backend connection, if any.
func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStore connects to the backend named by cfg.Store.Backend.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		blobs, err := openBlobStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		files := filestore.NewFileSharedPlanRepository(blobs, logger)
		logger.Info("using file share store", zap.String("driver", cfg.Files.Driver))
		return &Store{Repo: files, Files: files}, nil

	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		logger.Info("using postgres share store")
		return &Store{
			Repo: postgres.NewPostgresSharedPlanRepository(pool),
			closers: []func(){func() {
				logger.Info("closing postgres pool")
				pool.Close()
			}},
		}, nil

	case config.BackendMongo:
		client, err := mongo.ConnectDB(ctx, cfg.Database.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		db := client.Database(cfg.Database.Name)

		indexCtx, cancel := context.WithTimeout(ctx, 1*time.Minute) // Timeout for index creation
		defer cancel()
		if err := mongo.EnsureSharedPlanIndexes(indexCtx, mongo.SharedPlanCollection(db)); err != nil {
			// Indexes only speed up maintenance queries; serving can go ahead.
			logger.Warn("failed to ensure shared plan indexes", zap.Error(err))
		}
		logger.Info("using mongodb share store", zap.String("database", cfg.Database.Name))
		return &Store{
			Repo: mongo.NewMongoSharedPlanRepository(db),
			closers: []func(){func() {
				logger.Info("disconnecting mongodb")
				if err := mongo.DisconnectDB(client); err != nil {
					logger.Error("failed to disconnect mongodb", zap.Error(err))
				}
			}},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.BlobStore, error) {
	switch cfg.Files.Driver {
	case config.FileDriverS3:
		blobs, err := storage.NewS3Storage(ctx, cfg.S3, cfg.Files.Prefix, logger)
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return blobs, nil
	case config.FileDriverLocal:
		return storage.NewLocalStorage(afero.NewOsFs(), cfg.Files.Root)
	default:
		return nil, fmt.Errorf("unknown files driver %q", cfg.Files.Driver)
	}
}
