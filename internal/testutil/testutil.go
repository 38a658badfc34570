// Package testutil wires throwaway stores for tests: an in-memory sqlite
// database per test and a miniredis-backed cache.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/cache"
	"github.com/oggyb/blinddate/internal/config"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/logger"
	"github.com/oggyb/blinddate/internal/payment"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/settings"
)

// NewDB opens an isolated shared-cache in-memory sqlite DB named after the
// test and migrates every model.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return openSQLite(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

// NewFileDB opens a sqlite file in WAL mode for tests that race writers.
// Transactions take the write lock at BEGIN and wait up to five seconds
// for it.
func NewFileDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blinddate.db")
	return openSQLite(t, "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
}

func openSQLite(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 db.NewSlogLogger(logger.Discard(), gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Client.Close() })
	return rc, mr
}

// Env is a fully wired AppContext plus handles on its fakes.
type Env struct {
	App     *app.AppContext
	Redis   *miniredis.Miniredis
	Events  *events.Memory
	Gateway *payment.MockGateway
}

// NewApp wires an AppContext on sqlite, miniredis, an in-memory event sink
// and the mock payment gateway.
func NewApp(t *testing.T) *Env {
	t.Helper()
	return NewAppOn(t, NewDB(t))
}

// NewAppOn is NewApp over a caller-provided database.
func NewAppOn(t *testing.T, database *gorm.DB) *Env {
	t.Helper()

	rc, mr := NewRedis(t)

	cfg := &config.Config{}
	cfg.App.ENV = "test"
	cfg.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.SessionTTL = 7 * 24 * time.Hour
	cfg.Auth.AdminSessionTTL = 24 * time.Hour
	cfg.Discovery.PageSize = 20

	log := logger.Discard()
	store := settings.NewStore(repository.NewConfigRepository(database), log)
	require.NoError(t, store.Reload(context.Background()))

	tokens, err := auth.NewTokenService(cfg)
	require.NoError(t, err)

	sink := &events.Memory{}
	gw := payment.NewMockGateway()
	return &Env{
		App:     app.New(cfg, database, rc, log, store, sink, gw, tokens),
		Redis:   mr,
		Events:  sink,
		Gateway: gw,
	}
}

// UserOpts tweaks a fixture user.
type UserOpts struct {
	Email      string
	Gender     db.Gender
	GenderPref *db.Gender
	BirthDate  time.Time
	Status     db.UserStatus
	Role       db.Role
	Moderation db.ModerationStatus
	Name       string
	City       *string
	Height     *int
}

// CreateUser inserts a user with profile and preference. Defaults: ACTIVE,
// USER, APPROVED, born 1995-01-01, no gender preference.
func CreateUser(t *testing.T, database *gorm.DB, o UserOpts) *db.User {
	t.Helper()

	if o.Email == "" {
		o.Email = fmt.Sprintf("user-%d@test.com", time.Now().UnixNano())
	}
	if o.Gender == "" {
		o.Gender = db.GenderFemale
	}
	if o.BirthDate.IsZero() {
		o.BirthDate = time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if o.Status == "" {
		o.Status = db.UserActive
	}
	if o.Role == "" {
		o.Role = db.RoleUser
	}
	if o.Moderation == "" {
		o.Moderation = db.ModerationApproved
	}
	if o.Name == "" {
		o.Name = strings.Split(o.Email, "@")[0]
	}

	u := &db.User{Email: o.Email, PasswordHash: "x", Role: o.Role, Status: o.Status, Locale: "en"}
	require.NoError(t, database.Create(u).Error)
	require.NoError(t, database.Create(&db.Profile{
		UserID:     u.ID,
		Name:       o.Name,
		Gender:     o.Gender,
		BirthDate:  o.BirthDate,
		City:       o.City,
		Height:     o.Height,
		Moderation: o.Moderation,
	}).Error)
	require.NoError(t, database.Create(&db.MatchPreference{UserID: u.ID, GenderPref: o.GenderPref}).Error)
	return u
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
