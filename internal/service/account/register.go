package account

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/server/httpx"
)

const dateLayout = "2006-01-02"

// Registrar ties the Account service into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// RegisterPublicRoutes attaches sign-up, login and logout.
func (r *Registrar) RegisterPublicRoutes(rg *gin.RouterGroup) {
	h := r.handler()
	rg.POST("/auth/register", h.register)
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", h.logout)
}

// RegisterRoutes attaches the caller's profile endpoints to an
// authenticated group
func (r *Registrar) RegisterRoutes(rg *gin.RouterGroup) {
	h := r.handler()
	rg.GET("/profile", h.getProfile)
	rg.PUT("/profile", h.updateProfile)
}

func (r *Registrar) handler() *handler {
	return &handler{appCtx: r.appCtx, svc: NewAccountService(r.appCtx)}
}

type handler struct {
	appCtx *app.AppContext
	svc    *Service
}

type registerRequest struct {
	Email     string    `json:"email" binding:"required,email"`
	Password  string    `json:"password" binding:"required,min=6,max=72"`
	Name      string    `json:"name" binding:"required,max=64"`
	Gender    db.Gender `json:"gender" binding:"required,oneof=MALE FEMALE OTHER"`
	BirthDate string    `json:"birthDate" binding:"required"`
	Locale    string    `json:"locale" binding:"omitempty,oneof=zh en"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}
	birth, err := parseDate(req.BirthDate)
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	sess, err := h.svc.Register(c.Request.Context(), RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Gender:    req.Gender,
		BirthDate: birth,
		Locale:    req.Locale,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SetSessionCookie(c, h.appCtx, httpx.CookieApp, auth.AudienceApp, sess.Token)
	httpx.Created(c, sess)
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
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, auth.AudienceApp)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.SetSessionCookie(c, h.appCtx, httpx.CookieApp, auth.AudienceApp, sess.Token)
	httpx.OK(c, sess)
}

func (h *handler) logout(c *gin.Context) {
	httpx.ClearSessionCookie(c, h.appCtx, httpx.CookieApp)
	httpx.Message(c, "logged out")
}

func (h *handler) getProfile(c *gin.Context) {
	s := httpx.CurrentSession(c)
	me, err := h.svc.GetProfile(c.Request.Context(), s.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, me)
}

// PreferenceJSON is the wire shape of a preference update.
type PreferenceJSON struct {
	MinAge        *int       `json:"minAge" binding:"omitempty,min=18,max=100"`
	MaxAge        *int       `json:"maxAge" binding:"omitempty,min=18,max=100"`
	MinHeight     *int       `json:"minHeight" binding:"omitempty,min=100,max=250"`
	MaxHeight     *int       `json:"maxHeight" binding:"omitempty,min=100,max=250"`
	GenderPref    *db.Gender `json:"genderPref"`
	EducationPref *string    `json:"educationPref" binding:"omitempty,max=32"`
	CityPref      *string    `json:"cityPref" binding:"omitempty,max=64"`
	Description   *string    `json:"description" binding:"omitempty,max=1000"`
}

func (p *PreferenceJSON) Input() *PreferenceInput {
	return &PreferenceInput{
		MinAge:        p.MinAge,
		MaxAge:        p.MaxAge,
		MinHeight:     p.MinHeight,
		MaxHeight:     p.MaxHeight,
		GenderPref:    p.GenderPref,
		EducationPref: p.EducationPref,
		CityPref:      p.CityPref,
		Description:   p.Description,
	}
}

type updateProfileRequest struct {
	Name       *string         `json:"name" binding:"omitempty,max=64"`
	BirthDate  *string         `json:"birthDate"`
	Height     *int            `json:"height" binding:"omitempty,min=100,max=250"`
	Weight     *int            `json:"weight" binding:"omitempty,min=30,max=300"`
	Education  *string         `json:"education" binding:"omitempty,max=32"`
	Occupation *string         `json:"occupation" binding:"omitempty,max=128"`
	Income     *string         `json:"income" binding:"omitempty,max=32"`
	Bio        *string         `json:"bio" binding:"omitempty,max=2000"`
	City       *string         `json:"city" binding:"omitempty,max=64"`
	Province   *string         `json:"province" binding:"omitempty,max=64"`
	Country    *string         `json:"country" binding:"omitempty,max=64"`
	Photos     *[]string       `json:"photos" binding:"omitempty,dive,url"`
	AvatarURL  *string         `json:"avatarUrl" binding:"omitempty,url"`
	Contact    *string         `json:"contact" binding:"omitempty,max=255"`
	Preference *PreferenceJSON `json:"preference"`
}

func (h *handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Fail(c, err)
		return
	}

	in := ProfileInput{
		Name:       req.Name,
		Height:     req.Height,
		Weight:     req.Weight,
		Education:  req.Education,
		Occupation: req.Occupation,
		Income:     req.Income,
		Bio:        req.Bio,
		City:       req.City,
		Province:   req.Province,
		Country:    req.Country,
		Photos:     req.Photos,
		AvatarURL:  req.AvatarURL,
		Contact:    req.Contact,
	}
	if req.BirthDate != nil {
		birth, err := parseDate(*req.BirthDate)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		in.BirthDate = &birth
	}
	if req.Preference != nil {
		in.Preference = req.Preference.Input()
	}

	s := httpx.CurrentSession(c)
	me, err := h.svc.UpdateProfile(c.Request.Context(), s.UserID, in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, me)
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, svcErr.InvalidArgument("birthDate must be YYYY-MM-DD")
	}
	return t, nil
}
