package explore

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/server/httpx"
)

// Registrar ties the Explore service into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Explore service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// RegisterRoutes attaches the Explore endpoints to an authenticated group
func (r *Registrar) RegisterRoutes(rg *gin.RouterGroup) {
	h := &handler{svc: NewExploreService(r.appCtx)}
	rg.GET("/discover", h.discover)
	rg.POST("/like", h.like)
	rg.GET("/likes/count", h.countLikedYou)
	rg.GET("/likes/received", h.listLikedYou)
}

type handler struct {
	svc *Service
}

func (h *handler) discover(c *gin.Context) {
	s := httpx.CurrentSession(c)
	profiles, err := h.svc.Discover(c.Request.Context(), s.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, profiles)
}

// targetUserId is accepted for older clients.
type likeRequest struct {
	ToUserID     string `json:"toUserId"`
	TargetUserID string `json:"targetUserId"`
}

func (h *handler) like(c *gin.Context) {
	var req likeRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	s := httpx.CurrentSession(c)
	to := req.ToUserID
	if to == "" {
		to = req.TargetUserID
	}
	res, err := h.svc.RecordLike(c.Request.Context(), s.UserID, to)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, res)
}

func (h *handler) countLikedYou(c *gin.Context) {
	s := httpx.CurrentSession(c)
	n, err := h.svc.CountLikedYou(c.Request.Context(), s.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"count": n})
}

type listQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *handler) listLikedYou(c *gin.Context) {
	var q listQuery
	if err := httpx.BindQuery(c, &q); err != nil {
		httpx.Fail(c, err)
		return
	}
	s := httpx.CurrentSession(c)
	page, err := h.svc.ListLikedYou(c.Request.Context(), s.UserID, q.Cursor, q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, page)
}
