package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/logger"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/settings"
	"github.com/oggyb/blinddate/internal/testutil"
)

func TestStore_DefaultsWhenEmpty(t *testing.T) {
	dbase := testutil.NewDB(t)
	s := settings.NewStore(repository.NewConfigRepository(dbase), logger.Discard())
	require.NoError(t, s.Reload(context.Background()))

	assert.Equal(t, int64(settings.DefaultUnlockPriceCents), s.UnlockPriceCents())
	assert.Equal(t, settings.DefaultMaxPhotos, s.MaxPhotos())
}

func TestStore_ReloadAndUpdate(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	require.NoError(t, dbase.Create(&db.SystemConfig{Key: settings.KeyUnlockPrice, Value: "19.9"}).Error)

	s := settings.NewStore(repository.NewConfigRepository(dbase), logger.Discard())
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, int64(1990), s.UnlockPriceCents())

	// direct table edits are invisible until reload
	require.NoError(t, dbase.Model(&db.SystemConfig{}).
		Where(&db.SystemConfig{Key: settings.KeyUnlockPrice}).
		Update("value", "9.9").Error)
	assert.Equal(t, int64(1990), s.UnlockPriceCents())
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, int64(990), s.UnlockPriceCents())

	require.NoError(t, s.Update(ctx, map[string]string{settings.KeyMaxPhotos: "3"}))
	assert.Equal(t, 3, s.MaxPhotos())
	assert.Equal(t, "3", s.Values()[settings.KeyMaxPhotos])
}

func TestStore_InvalidValuesFallBack(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	s := settings.NewStore(repository.NewConfigRepository(dbase), logger.Discard())
	require.NoError(t, s.Update(ctx, map[string]string{
		settings.KeyUnlockPrice: "free",
		settings.KeyMaxPhotos:   "-1",
	}))

	assert.Equal(t, int64(settings.DefaultUnlockPriceCents), s.UnlockPriceCents())
	assert.Equal(t, settings.DefaultMaxPhotos, s.MaxPhotos())
}

func TestAmounts(t *testing.T) {
	cents, err := settings.ParseAmountCents("29.9")
	require.NoError(t, err)
	assert.Equal(t, int64(2990), cents)

	_, err = settings.ParseAmountCents("abc")
	assert.Error(t, err)

	assert.Equal(t, "29.90", settings.FormatAmount(2990))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, settings.Validate(settings.KeyUnlockPrice, "29.9"))
	assert.Error(t, settings.Validate(settings.KeyUnlockPrice, "0"))
	assert.Error(t, settings.Validate(settings.KeyUnlockPrice, "abc"))
	assert.NoError(t, settings.Validate(settings.KeyMaxPhotos, "6"))
	assert.Error(t, settings.Validate(settings.KeyMaxPhotos, "-1"))
	assert.NoError(t, settings.Validate("site_notice", "anything"))
	assert.Error(t, settings.Validate("", "x"))
}
