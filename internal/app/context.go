package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/cache"
	"github.com/oggyb/blinddate/internal/config"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/payment"
	"github.com/oggyb/blinddate/internal/settings"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Settings   *settings.Store
	Events     events.Publisher
	Payments   payment.Gateway
	Tokens     *auth.TokenService
}

// New creates a new AppContext
func New(
	cfg *config.Config,
	db *gorm.DB,
	rdb *cache.RedisCache,
	logger *slog.Logger,
	store *settings.Store,
	publisher events.Publisher,
	gateway payment.Gateway,
	tokens *auth.TokenService,
) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Settings:   store,
		Events:     publisher,
		Payments:   gateway,
		Tokens:     tokens,
	}
}
