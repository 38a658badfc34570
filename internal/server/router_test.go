package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/server"
	"github.com/oggyb/blinddate/internal/server/httpx"
	"github.com/oggyb/blinddate/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type client struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
}

func (c *client) do(method, path string, body any) (int, envelope) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == httpx.CookieApp || ck.Name == httpx.CookieAdmin {
			c.cookie = ck
		}
	}

	var env envelope
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

type idOnly struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

func register(t *testing.T, router *gin.Engine, email, gender string) (*client, string) {
	t.Helper()
	c := &client{t: t, router: router}
	code, env := c.do(http.MethodPost, "/auth/register", gin.H{
		"email":     email,
		"password":  "secret123",
		"name":      email[:1],
		"gender":    gender,
		"birthDate": "1995-06-01",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	require.NotNil(t, c.cookie)
	sess := decode[struct {
		User idOnly `json:"user"`
	}](t, env)
	return c, sess.User.ID
}

func TestRouter_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewApp(t)
	router := server.NewRouter(env.App)

	// staff account
	staff := testutil.CreateUser(t, env.App.DB, testutil.UserOpts{Email: "admin@test.com", Role: db.RoleAdmin, Gender: db.GenderMale})
	hash, err := auth.HashPassword("adminpass")
	require.NoError(t, err)
	require.NoError(t, repository.NewUserRepository(env.App.DB).Update(ctx, staff.ID, map[string]any{"password_hash": hash}))

	anon := &client{t: t, router: router}
	code, _ := anon.do(http.MethodGet, "/discover", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, res := anon.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)

	alice, _ := register(t, router, "alice@test.com", "MALE")
	bob, bobID := register(t, router, "bob@test.com", "FEMALE")

	code, res = alice.do(http.MethodPost, "/auth/register", gin.H{
		"email": "alice@test.com", "password": "secret123", "name": "A", "gender": "MALE", "birthDate": "1995-06-01",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, res.Success)

	// bob is still pending moderation
	code, res = alice.do(http.MethodGet, "/discover", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]idOnly](t, res))

	// member tokens do not open the console
	code, _ = alice.do(http.MethodGet, "/admin/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	admin := &client{t: t, router: router}
	code, res = admin.do(http.MethodPost, "/admin/auth/login", gin.H{"email": "admin@test.com", "password": "adminpass"})
	require.Equal(t, http.StatusOK, code, res.Error)

	code, res = admin.do(http.MethodGet, "/admin/moderation", nil)
	require.Equal(t, http.StatusOK, code)
	queue := decode[struct {
		Profiles []idOnly `json:"profiles"`
	}](t, res)
	var bobProfile string
	for _, p := range queue.Profiles {
		if p.UserID == bobID {
			bobProfile = p.ID
		}
	}
	require.NotEmpty(t, bobProfile)

	code, _ = admin.do(http.MethodPatch, "/admin/moderation/"+bobProfile, gin.H{"moderationStatus": "APPROVED"})
	require.Equal(t, http.StatusOK, code)

	code, res = alice.do(http.MethodGet, "/discover", nil)
	require.Equal(t, http.StatusOK, code)
	feed := decode[[]idOnly](t, res)
	require.Len(t, feed, 1)
	assert.Equal(t, bobID, feed[0].UserID)

	// like, then the mutual like forms the match
	code, res = alice.do(http.MethodPost, "/like", gin.H{"toUserId": bobID})
	require.Equal(t, http.StatusOK, code, res.Error)
	assert.False(t, decode[struct {
		Matched bool `json:"matched"`
	}](t, res).Matched)

	code, _ = alice.do(http.MethodPost, "/like", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = bob.do(http.MethodGet, "/likes/count", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decode[struct {
		Count int64 `json:"count"`
	}](t, res).Count)

	aliceID := decode[struct {
		User idOnly `json:"user"`
	}](t, mustOK(t, alice, http.MethodGet, "/profile")).User.ID

	code, res = bob.do(http.MethodPost, "/like", gin.H{"targetUserId": aliceID})
	require.Equal(t, http.StatusOK, code, res.Error)
	liked := decode[struct {
		Matched bool   `json:"matched"`
		MatchID string `json:"matchId"`
	}](t, res)
	require.True(t, liked.Matched)
	matchID := liked.MatchID

	code, res = alice.do(http.MethodGet, "/matches", nil)
	require.Equal(t, http.StatusOK, code)
	matches := decode[[]struct {
		ID         string `json:"id"`
		IsUnlocked bool   `json:"isUnlocked"`
	}](t, res)
	require.Len(t, matches, 1)
	assert.Equal(t, matchID, matches[0].ID)
	assert.False(t, matches[0].IsUnlocked)

	// locked chat
	code, _ = alice.do(http.MethodPost, "/messages/"+matchID, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	env.Gateway.Enqueue(db.PaymentFailed)
	code, _ = alice.do(http.MethodPost, "/unlock", gin.H{"matchId": matchID})
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, res = alice.do(http.MethodPost, "/unlock", gin.H{"matchId": matchID})
	require.Equal(t, http.StatusOK, code, res.Error)
	assert.True(t, decode[struct {
		Unlocked bool `json:"unlocked"`
	}](t, res).Unlocked)

	code, _ = alice.do(http.MethodPost, "/messages/"+matchID, gin.H{"content": "hi bob"})
	assert.Equal(t, http.StatusCreated, code)

	code, res = bob.do(http.MethodGet, "/messages/"+matchID, nil)
	require.Equal(t, http.StatusOK, code)
	conv := decode[struct {
		IsUnlocked bool `json:"isUnlocked"`
		Messages   []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}](t, res)
	assert.True(t, conv.IsUnlocked)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hi bob", conv.Messages[0].Content)

	// a ban applies on the next request
	code, _ = admin.do(http.MethodPatch, "/admin/users/"+bobID, gin.H{"status": "BANNED"})
	require.Equal(t, http.StatusOK, code)
	code, _ = bob.do(http.MethodGet, "/matches", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = admin.do(http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, code)
	st := decode[struct {
		UnlockedMatches int64 `json:"unlockedMatches"`
		BannedUsers     int64 `json:"bannedUsers"`
	}](t, res)
	assert.Equal(t, int64(1), st.UnlockedMatches)
	assert.Equal(t, int64(1), st.BannedUsers)

	code, _ = alice.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = alice.do(http.MethodGet, "/matches", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func mustOK(t *testing.T, c *client, method, path string) envelope {
	t.Helper()
	code, res := c.do(method, path, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	return res
}

func staffLogin(t *testing.T, router *gin.Engine, env *testutil.Env, email string, role db.Role) (*client, string) {
	t.Helper()
	ctx := context.Background()

	u := testutil.CreateUser(t, env.App.DB, testutil.UserOpts{Email: email, Role: role})
	hash, err := auth.HashPassword("staffpass")
	require.NoError(t, err)
	require.NoError(t, repository.NewUserRepository(env.App.DB).Update(ctx, u.ID, map[string]any{"password_hash": hash}))

	c := &client{t: t, router: router}
	code, res := c.do(http.MethodPost, "/admin/auth/login", gin.H{"email": email, "password": "staffpass"})
	require.Equal(t, http.StatusOK, code, res.Error)
	return c, u.ID
}

func TestRouter_RoleChangeAppliesToOpenSessions(t *testing.T) {
	env := testutil.NewApp(t)
	router := server.NewRouter(env.App)

	lead, _ := staffLogin(t, router, env, "lead@test.com", db.RoleAdmin)
	second, secondID := staffLogin(t, router, env, "second@test.com", db.RoleAdmin)

	code, _ := second.do(http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, code)

	// matchmakers keep the matchmaker queue but lose the admin pages
	code, _ = lead.do(http.MethodPatch, "/admin/users/"+secondID, gin.H{"role": "MATCHMAKER"})
	require.Equal(t, http.StatusOK, code)
	code, _ = second.do(http.MethodGet, "/admin/stats", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = second.do(http.MethodGet, "/admin/matchmaker", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = lead.do(http.MethodPatch, "/admin/users/"+secondID, gin.H{"role": "USER"})
	require.Equal(t, http.StatusOK, code)
	code, _ = second.do(http.MethodGet, "/admin/matchmaker", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = second.do(http.MethodPatch, "/admin/users/"+secondID, gin.H{"status": "BANNED"})
	assert.Equal(t, http.StatusForbidden, code)

	// promotion is picked up the same way
	code, _ = lead.do(http.MethodPatch, "/admin/users/"+secondID, gin.H{"role": "ADMIN"})
	require.Equal(t, http.StatusOK, code)
	code, _ = second.do(http.MethodGet, "/admin/stats", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_NotFoundAndValidation(t *testing.T) {
	env := testutil.NewApp(t)
	router := server.NewRouter(env.App)
	c := &client{t: t, router: router}

	code, res := c.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, res.Success)

	code, res = c.do(http.MethodPost, "/auth/register", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res.Error, "email")

	code, _ = c.do(http.MethodPost, "/auth/login", gin.H{"email": "x@test.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_CORS(t *testing.T) {
	env := testutil.NewApp(t)
	router := server.NewRouter(env.App)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// an empty allow list serves same-origin requests only
	env.App.Config.HTTP.AllowOrigins = nil
	var bare *gin.Engine
	require.NotPanics(t, func() { bare = server.NewRouter(env.App) })

	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
