//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"imagevault/internal/config"
	domain "imagevault/internal/domain/image"
	"imagevault/internal/domain/imaging"
	"imagevault/internal/infrastructure/auth"
	"imagevault/internal/infrastructure/classifier"
	"imagevault/internal/infrastructure/database"
	"imagevault/internal/infrastructure/logger"
	repo "imagevault/internal/infrastructure/repository/image"
	"imagevault/internal/interfaces/httpserver"
)

var imageSet = wire.NewSet(
	repo.NewRepository,
	wire.Bind(new(domain.Repository), new(*repo.Repository)),
	provideStorage,
	provideClassifier,
	provideNormalizer,
	domain.NewService,
)

// BuildApplication assembles the image API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		imageSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// provideClassifier returns nil when no screening service is configured;
// the domain service treats that as screening disabled.
func provideClassifier(cfg *config.Config, log zerolog.Logger) domain.Classifier {
	if !cfg.ScreeningConfigured() {
		return nil
	}
	return classifier.NewClient(cfg, log)
}

func provideNormalizer(cfg *config.Config) (domain.Normalizer, error) {
	return imaging.NewNormalizer(cfg)
}
