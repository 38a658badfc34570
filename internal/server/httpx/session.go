package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/logger"
	"github.com/oggyb/blinddate/internal/repository"
)

const (
	CookieApp   = "auth-token"
	CookieAdmin = "admin-token"

	sessionKey = "session"
)

// Session is the verified caller of a request.
type Session struct {
	UserID string
	Email  string
	Role   db.Role
	Locale string
}

// CurrentSession returns the session set by RequireSession.
func CurrentSession(c *gin.Context) *Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Session)
	return s
}

// RequireSession verifies the token from the cookie (or the Authorization
// header) and re-checks the live account status and role.
//
// Behavior:
//   - missing or invalid token, or unknown user -> 401
//   - BANNED -> 403
//   - an admin-audience token whose user is no longer staff -> 403
//   - status and role are cached in redis for a minute and dropped on
//     admin edits; the session carries the live role, not the token's
func RequireSession(appCtx *app.AppContext, audience, cookie string) gin.HandlerFunc {
	users := repository.NewUserRepository(appCtx.DB)

	return func(c *gin.Context) {
		token, _ := c.Cookie(cookie)
		if token == "" {
			token = c.GetHeader("Authorization")
		}

		claims, err := appCtx.Tokens.Verify(token, audience)
		if err != nil {
			Fail(c, svcErr.Unauthenticated("authentication required"))
			return
		}

		ctx := c.Request.Context()
		status, role, err := liveAccess(c, appCtx, users, claims.UserID())
		if err != nil {
			if repository.IsNotFound(err) {
				Fail(c, svcErr.Unauthenticated("account not found"))
				return
			}
			Fail(c, err)
			return
		}
		if status == db.UserBanned {
			Fail(c, svcErr.Forbidden("account is banned"))
			return
		}
		if audience == auth.AudienceAdmin && role == db.RoleUser {
			Fail(c, svcErr.Forbidden("staff access required"))
			return
		}

		c.Set(sessionKey, &Session{
			UserID: claims.UserID(),
			Email:  claims.Email,
			Role:   role,
			Locale: claims.Locale,
		})
		c.Request = c.Request.WithContext(logger.WithContext(ctx,
			logger.FromContext(ctx).With("user_id", claims.UserID())))
		c.Next()
	}
}

func liveAccess(c *gin.Context, appCtx *app.AppContext, users *repository.UserRepository, userID string) (db.UserStatus, db.Role, error) {
	ctx := c.Request.Context()

	status, role, err := appCtx.RedisCache.GetUserStatus(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("status cache read failed", "err", err)
	}
	if status != "" {
		return db.UserStatus(status), db.Role(role), nil
	}

	liveStatus, liveRole, err := users.GetAccess(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if err := appCtx.RedisCache.SetUserStatus(ctx, userID, string(liveStatus), string(liveRole)); err != nil {
		logger.FromContext(ctx).Warn("status cache write failed", "err", err)
	}
	return liveStatus, liveRole, nil
}

// RequireRole lets through only sessions with one of the roles.
func RequireRole(roles ...db.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil {
			Fail(c, svcErr.Unauthenticated("authentication required"))
			return
		}
		for _, r := range roles {
			if s.Role == r {
				c.Next()
				return
			}
		}
		Fail(c, svcErr.Forbidden("insufficient permissions"))
	}
}

// SetSessionCookie stores token in an http-only cookie for the audience TTL.
func SetSessionCookie(c *gin.Context, appCtx *app.AppContext, name, audience, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, token, int(appCtx.Tokens.TTL(audience).Seconds()), "/", "", appCtx.Config.Auth.CookieSecure, true)
}

// ClearSessionCookie expires the cookie.
func ClearSessionCookie(c *gin.Context, appCtx *app.AppContext, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", appCtx.Config.Auth.CookieSecure, true)
}
