package main

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/datastore"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ea "github.com/panyam/estateauth"
	"github.com/panyam/estateauth/config"
	fsstore "github.com/panyam/estateauth/stores/fs"
	"github.com/panyam/estateauth/stores/gae"
	gormstore "github.com/panyam/estateauth/stores/gorm"
	mongostore "github.com/panyam/estateauth/stores/mongo"
)

// backends holds the stores for the configured storage backend
type backends struct {
	Principals ea.PrincipalStore
	Profiles   ea.ProfileStore

	// migrate prepares schemas or indexes; nil when there is nothing to do
	migrate func(ctx context.Context) error
	close   func() error
}

func (b *backends) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func (b *backends) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return nil
	}
	return b.migrate(ctx)
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	switch cfg.Store {
	case config.StoreFS:
		log.Printf("using fs store at %s", cfg.StoragePath)
		return &backends{
			Principals: fsstore.NewFSPrincipalStore(cfg.StoragePath),
			Profiles:   fsstore.NewFSProfileStore(cfg.StoragePath),
		}, nil

	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, fmt.Errorf("datastore client: %w", err)
		}
		log.Printf("using datastore project %s namespace %q", cfg.DatastoreProject, cfg.TenantNamespace)
		return &backends{
			Principals: gae.NewPrincipalStore(client, cfg.TenantNamespace),
			Profiles:   gae.NewProfileStore(client, cfg.TenantNamespace),
			close:      client.Close,
		}, nil

	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		log.Printf("using mongo database %s", cfg.MongoDatabase)
		return &backends{
			Principals: mongostore.NewPrincipalStore(db),
			Profiles:   mongostore.NewProfileStore(db),
			migrate: func(ctx context.Context) error {
				return mongostore.EnsureIndexes(ctx, db)
			},
			close: func() error { return client.Disconnect(context.Background()) },
		}, nil

	case config.StorePostgres:
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		log.Printf("using postgres store")
		return &backends{
			Principals: gormstore.NewPrincipalStore(db),
			Profiles:   gormstore.NewProfileStore(db),
			migrate: func(ctx context.Context) error {
				return gormstore.AutoMigrate(db.WithContext(ctx))
			},
			close: sqlDB.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
