package conversation

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/server/httpx"
)

// Registrar ties the Conversation service into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// RegisterRoutes attaches match, unlock and message endpoints to an
// authenticated group
func (r *Registrar) RegisterRoutes(rg *gin.RouterGroup) {
	h := &handler{svc: NewConversationService(r.appCtx)}
	rg.GET("/matches", h.listMatches)
	rg.GET("/messages/:matchId", h.listMessages)
	rg.POST("/messages/:matchId", h.postMessage)
	rg.POST("/unlock", h.unlock)
	rg.POST("/matchmaker-request", h.requestMatchmaker)
}

type handler struct {
	svc *Service
}

func (h *handler) listMatches(c *gin.Context) {
	s := httpx.CurrentSession(c)
	matches, err := h.svc.ListMatches(c.Request.Context(), s.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, matches)
}

func (h *handler) listMessages(c *gin.Context) {
	s := httpx.CurrentSession(c)
	conv, err := h.svc.ListMessages(c.Request.Context(), s.UserID, c.Param("matchId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, conv)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (h *handler) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	s := httpx.CurrentSession(c)
	msg, err := h.svc.PostMessage(c.Request.Context(), s.UserID, c.Param("matchId"), req.Content)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, msg)
}

type unlockRequest struct {
	MatchID     string         `json:"matchId" binding:"required"`
	PaymentType db.PaymentType `json:"paymentType" binding:"omitempty,oneof=PAYMENT MATCHMAKER"`
}

func (h *handler) unlock(c *gin.Context) {
	var req unlockRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	s := httpx.CurrentSession(c)
	res, err := h.svc.Unlock(c.Request.Context(), s.UserID, req.MatchID, req.PaymentType)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, res)
}

type matchmakerRequest struct {
	MatchID *string `json:"matchId"`
	Notes   *string `json:"notes"`
}

func (h *handler) requestMatchmaker(c *gin.Context) {
	var req matchmakerRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	s := httpx.CurrentSession(c)
	mr, err := h.svc.RequestMatchmaker(c.Request.Context(), s.UserID, req.MatchID, req.Notes)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, mr)
}
