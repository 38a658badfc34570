package admin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/service/admin"
	"github.com/oggyb/blinddate/internal/service/conversation"
	"github.com/oggyb/blinddate/internal/settings"
	"github.com/oggyb/blinddate/internal/testutil"
)

type fixture struct {
	env   *testutil.Env
	svc   *admin.Service
	staff *db.User
	a, b  *db.User
	match *db.Match
}

// setupService creates an admin, two members with a locked match and one
// like each way.
func setupService(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	env := testutil.NewApp(t)
	gdb := env.App.DB
	f := &fixture{
		env:   env,
		svc:   admin.NewAdminService(env.App),
		staff: testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "admin@test.com", Role: db.RoleAdmin}),
	}
	f.a = testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "a@test.com", Gender: db.GenderFemale})
	f.b = testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "b@test.com", Gender: db.GenderMale, Moderation: db.ModerationPending})

	likes := repository.NewLikeRepository(gdb)
	_, err := likes.CreateLike(ctx, f.a.ID, f.b.ID)
	require.NoError(t, err)
	_, err = likes.CreateLike(ctx, f.b.ID, f.a.ID)
	require.NoError(t, err)
	f.match, _, err = repository.NewMatchRepository(gdb).Create(ctx, f.a.ID, f.b.ID)
	require.NoError(t, err)
	return f
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	conv := conversation.NewConversationService(f.env.App)
	_, err := conv.Unlock(ctx, f.a.ID, f.match.ID, db.PaymentTypePayment)
	require.NoError(t, err)
	_, err = conv.RequestMatchmaker(ctx, f.b.ID, nil, nil)
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalUsers)
	assert.Equal(t, int64(3), st.ActiveUsers)
	assert.Equal(t, int64(1), st.TotalMatches)
	assert.Equal(t, int64(1), st.UnlockedMatches)
	assert.Equal(t, int64(1), st.PendingModeration)
	assert.Equal(t, int64(1), st.PendingMatchmaker)
	assert.Equal(t, int64(1), st.CompletedOrders)
	assert.Equal(t, int64(2990), st.RevenueCents)
	assert.Equal(t, "29.90", st.Revenue)
}

func TestListAndGetUser(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.ListUsers(ctx, repository.UserFilter{}, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Users, 2)
	require.NotNil(t, page.NextToken)

	page, err = f.svc.ListUsers(ctx, repository.UserFilter{}, *page.NextToken, 2)
	require.NoError(t, err)
	assert.Len(t, page.Users, 1)
	assert.Nil(t, page.NextToken)

	_, err = f.svc.ListUsers(ctx, repository.UserFilter{}, "%%%", 2)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	contact := "wechat:a"
	require.NoError(t, repository.NewProfileRepository(f.env.App.DB).Update(ctx, f.a.ID, map[string]any{"contact": contact}))

	d, err := f.svc.GetUser(ctx, f.a.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Profile)
	require.NotNil(t, d.Profile.Contact)
	assert.Equal(t, contact, *d.Profile.Contact)
	assert.Equal(t, int64(1), d.LikesGiven)
	assert.Equal(t, int64(1), d.LikesReceived)
	assert.Equal(t, int64(1), d.Matches)
	assert.Equal(t, int64(0), d.MessagesSent)

	_, err = f.svc.GetUser(ctx, "missing")
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestPatchUser(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	// a cached ACTIVE status must not outlive the ban
	require.NoError(t, f.env.App.RedisCache.SetUserStatus(ctx, f.a.ID, string(db.UserActive), string(db.RoleUser)))

	d, err := f.svc.PatchUser(ctx, f.staff.ID, f.a.ID, []byte(`{
		"status": "BANNED",
		"profile": {"bio": "hello", "contact": null, "isVerified": true},
		"matchPreference": {"minAge": 25, "maxAge": 30}
	}`))
	require.NoError(t, err)
	assert.Equal(t, db.UserBanned, d.Status)
	require.NotNil(t, d.Profile.Bio)
	assert.Equal(t, "hello", *d.Profile.Bio)
	assert.True(t, d.Profile.IsVerified)
	require.NotNil(t, d.Preference.MaxAge)
	assert.Equal(t, 30, *d.Preference.MaxAge)
	assert.False(t, f.env.Redis.Exists(f.env.App.RedisCache.KeyForUserStatus(f.a.ID)))

	status, err := repository.NewUserRepository(f.env.App.DB).GetStatus(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, db.UserBanned, status)

	// role changes drop the cached access too
	require.NoError(t, f.env.App.RedisCache.SetUserStatus(ctx, f.b.ID, string(db.UserActive), string(db.RoleUser)))
	d, err = f.svc.PatchUser(ctx, f.staff.ID, f.b.ID, []byte(`{"role": "MATCHMAKER"}`))
	require.NoError(t, err)
	assert.Equal(t, db.RoleMatchmaker, d.Role)
	assert.False(t, f.env.Redis.Exists(f.env.App.RedisCache.KeyForUserStatus(f.b.ID)))
}

func TestPatchUser_Rejections(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	cases := map[string]string{
		"unknown field":   `{"password": "x"}`,
		"bad status":      `{"status": "DELETED"}`,
		"empty patch":     `{}`,
		"bad preference":  `{"matchPreference": {"minAge": 12}}`,
		"inverted range":  `{"matchPreference": {"minAge": 40, "maxAge": 30}}`,
		"not an object":   `[1,2]`,
		"unknown profile": `{"profile": {"email": "x@y.z"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.PatchUser(ctx, f.staff.ID, f.a.ID, []byte(body))
			assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed), "got %v", err)
		})
	}

	_, err := f.svc.PatchUser(ctx, f.staff.ID, f.staff.ID, []byte(`{"status": "BANNED"}`))
	assert.True(t, svcErr.Is(err, svcErr.KindAuthorizationDenied))

	_, err = f.svc.PatchUser(ctx, f.staff.ID, "missing", []byte(`{"status": "BANNED"}`))
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestModeration(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.ListModeration(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, f.b.ID, page.Profiles[0].UserID)

	p, err := f.svc.SetModeration(ctx, page.Profiles[0].ID, db.ModerationApproved)
	require.NoError(t, err)
	assert.Equal(t, db.ModerationApproved, p.Moderation)

	page, err = f.svc.ListModeration(ctx, db.ModerationPending, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Profiles)

	_, err = f.svc.SetModeration(ctx, "missing", db.ModerationApproved)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestMatchmakerRequests(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	conv := conversation.NewConversationService(f.env.App)
	req, err := conv.RequestMatchmaker(ctx, f.a.ID, &f.match.ID, nil)
	require.NoError(t, err)

	page, err := f.svc.ListMatchmakerRequests(ctx, db.RequestPending, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)

	notes := "called both"
	upd, err := f.svc.UpdateMatchmakerRequest(ctx, req.ID, db.RequestCompleted, &notes)
	require.NoError(t, err)
	assert.Equal(t, db.RequestCompleted, upd.Status)
	assert.Equal(t, notes, *upd.Notes)

	// finished requests are frozen
	_, err = f.svc.UpdateMatchmakerRequest(ctx, req.ID, db.RequestPending, nil)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	_, err = f.svc.UpdateMatchmakerRequest(ctx, "missing", db.RequestCompleted, nil)
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	f.env.Gateway.Enqueue(db.PaymentPending)

	conv := conversation.NewConversationService(f.env.App)
	res, err := conv.Unlock(ctx, f.a.ID, f.match.ID, db.PaymentTypePayment)
	require.NoError(t, err)
	require.True(t, res.Pending)

	page, err := f.svc.ListOrders(ctx, db.PaymentPending, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)

	rec, err := f.svc.SettleOrder(ctx, res.OrderID, db.PaymentCompleted)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCompleted, rec.Status)

	m, err := repository.NewMatchRepository(f.env.App.DB).GetByID(ctx, f.match.ID)
	require.NoError(t, err)
	assert.True(t, m.IsUnlocked)

	page, err = f.svc.ListOrders(ctx, db.PaymentPending, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	values, err := f.svc.UpdateSettings(ctx, map[string]string{settings.KeyUnlockPrice: "19.9"})
	require.NoError(t, err)
	assert.Equal(t, "19.9", values[settings.KeyUnlockPrice])
	assert.Equal(t, int64(1990), f.env.App.Settings.UnlockPriceCents())

	_, err = f.svc.UpdateSettings(ctx, map[string]string{settings.KeyMaxPhotos: "lots"})
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	_, err = f.svc.UpdateSettings(ctx, nil)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	// out-of-band edits show after reload
	require.NoError(t, f.env.App.DB.Model(&db.SystemConfig{}).
		Where(&db.SystemConfig{Key: settings.KeyUnlockPrice}).
		Update("value", "9.9").Error)
	values, err = f.svc.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9.9", values[settings.KeyUnlockPrice])
	assert.Equal(t, "9.9", f.svc.Settings()[settings.KeyUnlockPrice])
}
