package account_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/service/account"
	"github.com/oggyb/blinddate/internal/testutil"
)

func setupService(t *testing.T) (*account.Service, *testutil.Env) {
	t.Helper()
	env := testutil.NewApp(t)
	return account.NewAccountService(env.App), env
}

func registerInput(email string, g db.Gender) account.RegisterInput {
	return account.RegisterInput{
		Email:     email,
		Password:  "secret123",
		Name:      "Ann",
		Gender:    g,
		BirthDate: time.Date(1996, 5, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)

	sess, err := svc.Register(ctx, registerInput("  Ann@Example.com ", db.GenderFemale))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", sess.User.Email)
	assert.Equal(t, db.RoleUser, sess.User.Role)
	assert.Equal(t, db.UserActive, sess.User.Status)

	claims, err := env.App.Tokens.Verify(sess.Token, auth.AudienceApp)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID())

	u, err := repository.NewUserRepository(env.App.DB).GetByID(ctx, sess.User.ID)
	require.NoError(t, err)
	require.NotNil(t, u.Profile)
	assert.Equal(t, db.ModerationPending, u.Profile.Moderation)
	require.NotNil(t, u.MatchPreference)
	require.NotNil(t, u.MatchPreference.GenderPref)
	assert.Equal(t, db.GenderMale, *u.MatchPreference.GenderPref)
	assert.NotEqual(t, "secret123", u.PasswordHash)

	// OTHER gets no default gender filter
	sess, err = svc.Register(ctx, registerInput("sam@example.com", db.GenderOther))
	require.NoError(t, err)
	pref, err := repository.NewProfileRepository(env.App.DB).GetPreference(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Nil(t, pref.GenderPref)
}

func TestRegister_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, registerInput("ann@example.com", db.GenderFemale))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("ANN@example.com", db.GenderFemale))
	assert.True(t, svcErr.Is(err, svcErr.KindConflict))

	young := registerInput("kid@example.com", db.GenderMale)
	young.BirthDate = time.Now().AddDate(-17, 0, 0)
	_, err = svc.Register(ctx, young)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	blank := registerInput("blank@example.com", db.GenderMale)
	blank.Name = "   "
	_, err = svc.Register(ctx, blank)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)

	reg, err := svc.Register(ctx, registerInput("ann@example.com", db.GenderFemale))
	require.NoError(t, err)

	sess, err := svc.Login(ctx, "ANN@example.com", "secret123", auth.AudienceApp)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)

	_, err = svc.Login(ctx, "ann@example.com", "wrong", auth.AudienceApp)
	assert.True(t, svcErr.Is(err, svcErr.KindAuthenticationRequired))

	_, err = svc.Login(ctx, "nobody@example.com", "secret123", auth.AudienceApp)
	assert.True(t, svcErr.Is(err, svcErr.KindAuthenticationRequired))

	// plain users cannot open an admin session
	_, err = svc.Login(ctx, "ann@example.com", "secret123", auth.AudienceAdmin)
	assert.True(t, svcErr.Is(err, svcErr.KindAuthorizationDenied))

	users := repository.NewUserRepository(env.App.DB)
	require.NoError(t, users.Update(ctx, reg.User.ID, map[string]any{"role": db.RoleAdmin}))
	sess, err = svc.Login(ctx, "ann@example.com", "secret123", auth.AudienceAdmin)
	require.NoError(t, err)
	_, err = env.App.Tokens.Verify(sess.Token, auth.AudienceAdmin)
	assert.NoError(t, err)

	require.NoError(t, users.Update(ctx, reg.User.ID, map[string]any{"status": db.UserBanned}))
	_, err = svc.Login(ctx, "ann@example.com", "secret123", auth.AudienceApp)
	assert.True(t, svcErr.Is(err, svcErr.KindAuthorizationDenied))
}

func TestGetAndUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	reg, err := svc.Register(ctx, registerInput("ann@example.com", db.GenderFemale))
	require.NoError(t, err)

	contact := "wechat:ann"
	city := "Shanghai"
	me, err := svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{
		Contact: &contact,
		City:    &city,
		Height:  testutil.Ptr(165),
		Photos:  &[]string{"https://img.example.com/1.jpg"},
		Preference: &account.PreferenceInput{
			MinAge: testutil.Ptr(25),
			MaxAge: testutil.Ptr(35),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, me.Profile)
	assert.Equal(t, "Ann", me.Profile.Name)
	require.NotNil(t, me.Profile.Contact)
	assert.Equal(t, contact, *me.Profile.Contact)
	assert.Len(t, me.Profile.Photos, 1)
	require.NotNil(t, me.Preference)
	assert.Equal(t, 25, *me.Preference.MinAge)
	// untouched preference fields survive
	require.NotNil(t, me.Preference.GenderPref)
	assert.Equal(t, db.GenderMale, *me.Preference.GenderPref)

	me, err = svc.GetProfile(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, city, *me.Profile.City)

	_, err = svc.GetProfile(ctx, "missing")
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

func TestUpdateProfile_Validation(t *testing.T) {
	ctx := context.Background()
	svc, env := setupService(t)

	reg, err := svc.Register(ctx, registerInput("ann@example.com", db.GenderFemale))
	require.NoError(t, err)

	photos := make([]string, env.App.Settings.MaxPhotos()+1)
	for i := range photos {
		photos[i] = "https://img.example.com/p.jpg"
	}
	_, err = svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{Photos: &photos})
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	_, err = svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{
		Preference: &account.PreferenceInput{MinAge: testutil.Ptr(40), MaxAge: testutil.Ptr(30)},
	})
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	bad := db.Gender("ROBOT")
	_, err = svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{
		Preference: &account.PreferenceInput{GenderPref: &bad},
	})
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	empty := strings.Repeat(" ", 3)
	_, err = svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{Name: &empty})
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	// clearing the gender filter
	anyGender := db.Gender("")
	me, err := svc.UpdateProfile(ctx, reg.User.ID, account.ProfileInput{
		Preference: &account.PreferenceInput{GenderPref: &anyGender},
	})
	require.NoError(t, err)
	assert.Nil(t, me.Preference.GenderPref)
}
