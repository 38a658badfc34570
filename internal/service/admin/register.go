package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/server/httpx"
	"github.com/oggyb/blinddate/internal/service/account"
)

// Registrar ties the Admin service into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// RegisterPublicRoutes attaches staff login and logout under /admin.
func (r *Registrar) RegisterPublicRoutes(rg *gin.RouterGroup) {
	h := r.handler()
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", h.logout)
}

// RegisterRoutes attaches the console endpoints to a group that already
// carries an admin session. Matchmaker routes are open to MATCHMAKER staff,
// everything else needs ADMIN.
func (r *Registrar) RegisterRoutes(rg *gin.RouterGroup) {
	h := r.handler()

	staff := rg.Group("", httpx.RequireRole(db.RoleAdmin, db.RoleMatchmaker))
	staff.GET("/matchmaker", h.listMatchmaker)
	staff.PATCH("/matchmaker/:id", h.updateMatchmaker)

	admins := rg.Group("", httpx.RequireRole(db.RoleAdmin))
	admins.GET("/stats", h.stats)
	admins.GET("/users", h.listUsers)
	admins.GET("/users/:id", h.getUser)
	admins.PATCH("/users/:id", h.patchUser)
	admins.GET("/moderation", h.listModeration)
	admins.PATCH("/moderation/:id", h.setModeration)
	admins.GET("/orders", h.listOrders)
	admins.POST("/orders/:id/settle", h.settleOrder)
	admins.GET("/settings", h.getSettings)
	admins.PUT("/settings", h.updateSettings)
	admins.POST("/settings/reload", h.reloadSettings)
}

func (r *Registrar) handler() *handler {
	return &handler{
		appCtx:  r.appCtx,
		svc:     NewAdminService(r.appCtx),
		account: account.NewAccountService(r.appCtx),
	}
}

type handler struct {
	appCtx  *app.AppContext
	svc     *Service
	account *account.Service
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	sess, err := h.account.Login(c.Request.Context(), req.Email, req.Password, auth.AudienceAdmin)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SetSessionCookie(c, h.appCtx, httpx.CookieAdmin, auth.AudienceAdmin, sess.Token)
	httpx.OK(c, sess)
}

func (h *handler) logout(c *gin.Context) {
	httpx.ClearSessionCookie(c, h.appCtx, httpx.CookieAdmin)
	httpx.Message(c, "logged out")
}

func (h *handler) stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, st)
}

type usersQuery struct {
	Cursor string        `form:"cursor"`
	Limit  int           `form:"limit" binding:"omitempty,min=1,max=100"`
	Status db.UserStatus `form:"status" binding:"omitempty,oneof=ACTIVE BANNED INACTIVE"`
	Role   db.Role       `form:"role" binding:"omitempty,oneof=USER MATCHMAKER ADMIN"`
	Search string        `form:"search"`
}

func (h *handler) listUsers(c *gin.Context) {
	var q usersQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Fail(c, err)
		return
	}
	f := repository.UserFilter{Status: q.Status, Role: q.Role, Search: q.Search}
	page, err := h.svc.ListUsers(c.Request.Context(), f, q.Cursor, q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, page)
}

func (h *handler) getUser(c *gin.Context) {
	d, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, d)
}

func (h *handler) patchUser(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		httpx.Fail(c, svcErr.InvalidArgument("request body is required"))
		return
	}
	s := httpx.CurrentSession(c)
	d, err := h.svc.PatchUser(c.Request.Context(), s.UserID, c.Param("id"), body)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, d)
}

type moderationQuery struct {
	Status db.ModerationStatus `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Page   int                 `form:"page" binding:"omitempty,min=1"`
	Limit  int                 `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *handler) listModeration(c *gin.Context) {
	var q moderationQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Fail(c, err)
		return
	}
	page, err := h.svc.ListModeration(c.Request.Context(), q.Status, q.Page, q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, page)
}

type moderationRequest struct {
	ModerationStatus db.ModerationStatus `json:"moderationStatus" binding:"required,oneof=PENDING APPROVED REJECTED"`
}

func (h *handler) setModeration(c *gin.Context) {
	var req moderationRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	p, err := h.svc.SetModeration(c.Request.Context(), c.Param("id"), req.ModerationStatus)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, p)
}

type matchmakerQuery struct {
	Cursor string           `form:"cursor"`
	Limit  int              `form:"limit" binding:"omitempty,min=1,max=100"`
	Status db.RequestStatus `form:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED CANCELLED"`
}

func (h *handler) listMatchmaker(c *gin.Context) {
	var q matchmakerQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Fail(c, err)
		return
	}
	page, err := h.svc.ListMatchmakerRequests(c.Request.Context(), q.Status, q.Cursor, q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, page)
}

type matchmakerUpdate struct {
	Status db.RequestStatus `json:"status" binding:"required,oneof=PENDING IN_PROGRESS COMPLETED CANCELLED"`
	Notes  *string          `json:"notes" binding:"omitempty,max=1000"`
}

func (h *handler) updateMatchmaker(c *gin.Context) {
	var req matchmakerUpdate
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	mr, err := h.svc.UpdateMatchmakerRequest(c.Request.Context(), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, mr)
}

type ordersQuery struct {
	Cursor string           `form:"cursor"`
	Limit  int              `form:"limit" binding:"omitempty,min=1,max=100"`
	Status db.PaymentStatus `form:"status" binding:"omitempty,oneof=PENDING COMPLETED FAILED REFUNDED"`
}

func (h *handler) listOrders(c *gin.Context) {
	var q ordersQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Fail(c, err)
		return
	}
	page, err := h.svc.ListOrders(c.Request.Context(), q.Status, q.Cursor, q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, page)
}

type settleRequest struct {
	Status db.PaymentStatus `json:"status" binding:"required,oneof=COMPLETED FAILED REFUNDED"`
}

func (h *handler) settleOrder(c *gin.Context) {
	var req settleRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	rec, err := h.svc.SettleOrder(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, rec)
}

func (h *handler) getSettings(c *gin.Context) {
	httpx.OK(c, h.svc.Settings())
}

type settingsRequest struct {
	Configs map[string]string `json:"configs" binding:"required"`
}

func (h *handler) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	values, err := h.svc.UpdateSettings(c.Request.Context(), req.Configs)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, values)
}

func (h *handler) reloadSettings(c *gin.Context) {
	values, err := h.svc.ReloadSettings(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, values)
}
