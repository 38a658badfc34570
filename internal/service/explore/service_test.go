package explore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/service/explore"
	"github.com/oggyb/blinddate/internal/testutil"
)

//
// Test helpers
//

type fixture struct {
	env   *testutil.Env
	svc   *explore.Service
	alice *db.User         // female, prefers men
	bob   *db.User         // male, prefers women
	carol *db.User         // female, prefers men
}

// setupService wires an ExploreService on an isolated sqlite DB and
// miniredis and seeds a minimal, deterministic dataset.
//
// Dataset:
//   - alice (female) and carol (female) prefer men
//   - bob (male) prefers women
//   - carol → bob = like
func setupService(t *testing.T) *fixture {
	t.Helper()

	env := testutil.NewApp(t)
	gdb := env.App.DB

	male, female := db.GenderMale, db.GenderFemale
	f := &fixture{
		env:   env,
		svc:   explore.NewExploreService(env.App),
		alice: testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "alice@test.com", Gender: female, GenderPref: &male}),
		bob:   testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "bob@test.com", Gender: male, GenderPref: &female}),
		carol: testutil.CreateUser(t, gdb, testutil.UserOpts{Email: "carol@test.com", Gender: female, GenderPref: &male}),
	}
	require.NoError(t, gdb.Create(&db.Like{FromUserID: f.carol.ID, ToUserID: f.bob.ID}).Error)
	return f
}

func countRows(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Count(&n).Error)
	return n
}

//
// Tests
//

// TestDiscover_AppliesGenderPreference checks bob only sees women and
// alice only sees bob.
func TestDiscover_AppliesGenderPreference(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	got, err := f.svc.Discover(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, db.GenderFemale, p.Gender)
		assert.NotEqual(t, f.bob.ID, p.UserID)
	}

	got, err = f.svc.Discover(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.bob.ID, got[0].UserID)
}

// TestDiscover_ExcludesLiked: carol already liked bob, so her feed is empty.
func TestDiscover_ExcludesLiked(t *testing.T) {
	f := setupService(t)

	got, err := f.svc.Discover(context.Background(), f.carol.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestRecordLike_OneWay stores the like without matching.
func TestRecordLike_OneWay(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	res, err := f.svc.RecordLike(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.False(t, res.Matched)
	assert.Zero(t, countRows(t, f.env.App.DB, &db.Match{}))
	assert.Empty(t, f.env.Events.Events())
}

// TestRecordLike_Mutual forms exactly one match with a canonical pair.
func TestRecordLike_Mutual(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	res, err := f.svc.RecordLike(ctx, f.bob.ID, f.carol.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.True(t, res.Matched)
	assert.NotEmpty(t, res.MatchID)

	var m db.Match
	require.NoError(t, f.env.App.DB.First(&m, "id = ?", res.MatchID).Error)
	assert.Less(t, m.User1ID, m.User2ID)
	assert.True(t, m.Has(f.bob.ID))
	assert.True(t, m.Has(f.carol.ID))
	assert.False(t, m.IsUnlocked)

	evts := f.env.Events.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeMatchCreated, evts[0].Type)
	assert.Equal(t, res.MatchID, evts[0].MatchID)

	// liking again is idempotent and does not re-announce the match
	res, err = f.svc.RecordLike(ctx, f.bob.ID, f.carol.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.False(t, res.Matched)
	assert.Equal(t, int64(1), countRows(t, f.env.App.DB, &db.Match{}))
	assert.Equal(t, int64(2), countRows(t, f.env.App.DB, &db.Like{}))
	assert.Len(t, f.env.Events.Events(), 1)
}

func TestRecordLike_ConcurrentReciprocalLikes(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewAppOn(t, testutil.NewFileDB(t))
	svc := explore.NewExploreService(env.App)

	for round := 0; round < 5; round++ {
		a := testutil.CreateUser(t, env.App.DB, testutil.UserOpts{Email: fmt.Sprintf("a%d@test.com", round)})
		b := testutil.CreateUser(t, env.App.DB, testutil.UserOpts{Email: fmt.Sprintf("b%d@test.com", round)})

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]*explore.LikeResult, 2)
			errs    = make([]error, 2)
		)
		for i, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(i int, from, to string) {
				defer wg.Done()
				<-start
				results[i], errs[i] = svc.RecordLike(ctx, from, to)
			}(i, pair[0], pair[1])
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		matched := 0
		for _, res := range results {
			if res.Matched {
				matched++
			}
		}
		assert.Equal(t, 1, matched, "round %d", round)

		var n int64
		u1, u2 := a.ID, b.ID
		if u2 < u1 {
			u1, u2 = u2, u1
		}
		require.NoError(t, env.App.DB.Model(&db.Match{}).
			Where("user1_id = ? AND user2_id = ?", u1, u2).
			Count(&n).Error)
		assert.Equal(t, int64(1), n, "round %d", round)
	}
	assert.Len(t, env.Events.Events(), 5)
}

func TestRecordLike_Validation(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	_, err := f.svc.RecordLike(ctx, f.bob.ID, "")
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	_, err = f.svc.RecordLike(ctx, f.bob.ID, f.bob.ID)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))

	_, err = f.svc.RecordLike(ctx, f.bob.ID, "no-such-user")
	assert.True(t, svcErr.Is(err, svcErr.KindNotFound))
}

// TestListLikedYou returns carol as bob's only liker, with her profile.
func TestListLikedYou(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	page, err := f.svc.ListLikedYou(ctx, f.bob.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Likers, 1)
	assert.Equal(t, f.carol.ID, page.Likers[0].UserID)
	require.NotNil(t, page.Likers[0].Profile)
	assert.Nil(t, page.NextToken)

	_, err = f.svc.ListLikedYou(ctx, f.bob.ID, "%%%", 0)
	assert.True(t, svcErr.Is(err, svcErr.KindValidationFailed))
}

// TestCountLikedYouCache verifies like counts with cache.
func TestCountLikedYouCache(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	// First call → DB
	n, err := f.svc.CountLikedYou(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, f.env.Redis.Exists("likes:count:"+f.bob.ID))

	// a new like bumps the cached counter
	_, err = f.svc.RecordLike(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	// Second call → cache
	n, err = f.svc.CountLikedYou(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cached, err := f.env.Redis.Get("likes:count:" + f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", cached)
}
