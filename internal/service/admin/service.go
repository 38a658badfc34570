// Package admin implements the staff console: stats, user management,
// profile moderation, matchmaker requests, orders and runtime settings.
package admin

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/dto"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/service/account"
	"github.com/oggyb/blinddate/internal/service/conversation"
	"github.com/oggyb/blinddate/internal/settings"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

//go:embed schemas/user_patch.schema.json
var userPatchSchemaJSON string

var userPatchSchema = mustSchema(userPatchSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(err)
	}
	return schema
}

// profileColumns maps patchable profile keys to their columns.
var profileColumns = map[string]string{
	"name":             "name",
	"bio":              "bio",
	"city":             "city",
	"province":         "province",
	"occupation":       "occupation",
	"education":        "education",
	"contact":          "contact",
	"isVerified":       "is_verified",
	"moderationStatus": "moderation_status",
}

type Service struct {
	appCtx      *app.AppContext
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	likeRepo    *repository.LikeRepository
	matchRepo   *repository.MatchRepository
	messageRepo *repository.MessageRepository
	unlockRepo  *repository.UnlockRepository
	mmRepo      *repository.MatchmakerRepository
	conv        *conversation.Service

	now func() time.Time
}

func NewAdminService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		userRepo:    repository.NewUserRepository(appCtx.DB),
		profileRepo: repository.NewProfileRepository(appCtx.DB),
		likeRepo:    repository.NewLikeRepository(appCtx.DB),
		matchRepo:   repository.NewMatchRepository(appCtx.DB),
		messageRepo: repository.NewMessageRepository(appCtx.DB),
		unlockRepo:  repository.NewUnlockRepository(appCtx.DB),
		mmRepo:      repository.NewMatchmakerRepository(appCtx.DB),
		conv:        conversation.NewConversationService(appCtx),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Stats is the dashboard summary.
type Stats struct {
	TotalUsers        int64  `json:"totalUsers"`
	ActiveUsers       int64  `json:"activeUsers"`
	BannedUsers       int64  `json:"bannedUsers"`
	TotalMatches      int64  `json:"totalMatches"`
	UnlockedMatches   int64  `json:"unlockedMatches"`
	TotalMessages     int64  `json:"totalMessages"`
	PendingModeration int64  `json:"pendingModeration"`
	PendingMatchmaker int64  `json:"pendingMatchmaker"`
	CompletedOrders   int64  `json:"completedOrders"`
	RevenueCents      int64  `json:"revenueCents"`
	Revenue           string `json:"revenue"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.userRepo.CountByStatus(ctx)
	if err != nil {
		return nil, svcErr.Map(errors.Wrap(err, "count users"))
	}
	byModeration, err := s.profileRepo.CountByModeration(ctx)
	if err != nil {
		return nil, svcErr.Map(errors.Wrap(err, "count profiles"))
	}

	st := &Stats{
		ActiveUsers:       byStatus[db.UserActive],
		BannedUsers:       byStatus[db.UserBanned],
		PendingModeration: byModeration[db.ModerationPending],
	}
	for _, n := range byStatus {
		st.TotalUsers += n
	}

	if st.TotalMatches, err = s.matchRepo.Count(ctx); err != nil {
		return nil, svcErr.Map(err)
	}
	if st.UnlockedMatches, err = s.matchRepo.CountUnlocked(ctx); err != nil {
		return nil, svcErr.Map(err)
	}
	if st.TotalMessages, err = s.messageRepo.Count(ctx); err != nil {
		return nil, svcErr.Map(err)
	}
	if st.PendingMatchmaker, err = s.mmRepo.CountByStatus(ctx, db.RequestPending); err != nil {
		return nil, svcErr.Map(err)
	}
	if st.CompletedOrders, st.RevenueCents, err = s.unlockRepo.CompletedTotals(ctx); err != nil {
		return nil, svcErr.Map(err)
	}
	st.Revenue = settings.FormatAmount(st.RevenueCents)
	return st, nil
}

// UserSummary is one row of the user list.
type UserSummary struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Role       db.Role             `json:"role"`
	Status     db.UserStatus       `json:"status"`
	Name       string              `json:"name,omitempty"`
	Gender     db.Gender           `json:"gender,omitempty"`
	Moderation db.ModerationStatus `json:"moderationStatus,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

type UserPage struct {
	Users     []UserSummary `json:"users"`
	NextToken *string       `json:"nextToken,omitempty"`
}

// ListUsers pages through users newest first.
func (s *Service) ListUsers(ctx context.Context, f repository.UserFilter, token string, limit int) (*UserPage, error) {
	users, next, err := s.userRepo.List(ctx, f, token, pagination.ClampLimit(limit))
	if err != nil {
		if _, decodeErr := pagination.Decode(token); decodeErr != nil {
			return nil, svcErr.InvalidArgument(decodeErr.Error())
		}
		return nil, svcErr.Map(err)
	}

	page := &UserPage{Users: make([]UserSummary, 0, len(users)), NextToken: next}
	for _, u := range users {
		row := UserSummary{ID: u.ID, Email: u.Email, Role: u.Role, Status: u.Status, CreatedAt: u.CreatedAt}
		if u.Profile != nil {
			row.Name = u.Profile.Name
			row.Gender = u.Profile.Gender
			row.Moderation = u.Profile.Moderation
		}
		page.Users = append(page.Users, row)
	}
	return page, nil
}

// UserDetail is the staff view of one account, contact included.
type UserDetail struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Phone         *string          `json:"phone,omitempty"`
	Role          db.Role          `json:"role"`
	Status        db.UserStatus    `json:"status"`
	Locale        string           `json:"locale"`
	CreatedAt     time.Time        `json:"createdAt"`
	Profile       *dto.FullProfile `json:"profile,omitempty"`
	Preference    *dto.Preference  `json:"matchPreference,omitempty"`
	LikesGiven    int64            `json:"likesGiven"`
	LikesReceived int64            `json:"likesReceived"`
	Matches       int64            `json:"matches"`
	MessagesSent  int64            `json:"messagesSent"`
}

func (s *Service) GetUser(ctx context.Context, id string) (*UserDetail, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("user not found")
		}
		return nil, svcErr.Map(err)
	}

	d := &UserDetail{
		ID:         u.ID,
		Email:      u.Email,
		Phone:      u.Phone,
		Role:       u.Role,
		Status:     u.Status,
		Locale:     u.Locale,
		CreatedAt:  u.CreatedAt,
		Preference: dto.NewPreference(u.MatchPreference),
	}
	if u.Profile != nil {
		fp := dto.NewFullProfile(u.Profile, s.now(), true)
		d.Profile = &fp
	}

	if d.LikesGiven, err = s.likeRepo.CountGiven(ctx, id); err != nil {
		return nil, svcErr.Map(err)
	}
	if d.LikesReceived, err = s.likeRepo.CountLikers(ctx, id); err != nil {
		return nil, svcErr.Map(err)
	}
	if d.Matches, err = s.matchRepo.CountForUser(ctx, id); err != nil {
		return nil, svcErr.Map(err)
	}
	if d.MessagesSent, err = s.messageRepo.CountBySender(ctx, id); err != nil {
		return nil, svcErr.Map(err)
	}
	return d, nil
}

type userPatch struct {
	Status          *db.UserStatus          `json:"status"`
	Role            *db.Role                `json:"role"`
	Profile         map[string]any          `json:"profile"`
	MatchPreference *account.PreferenceJSON `json:"matchPreference"`
}

// PatchUser applies a JSON patch body to a user. The body is checked
// against schemas/user_patch.schema.json first. Staff cannot change their
// own status or role. A status change drops the cached account status so
// it takes effect on the user's next request.
func (s *Service) PatchUser(ctx context.Context, actorID, id string, body []byte) (*UserDetail, error) {
	res, err := userPatchSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, svcErr.InvalidArgument("body must be a JSON object")
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, svcErr.InvalidArgument(strings.Join(msgs, "; "))
	}

	var patch userPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		return nil, svcErr.InvalidArgument("body must be a JSON object")
	}
	if actorID == id && (patch.Status != nil || patch.Role != nil) {
		return nil, svcErr.Forbidden("cannot change your own status or role")
	}

	userFields := map[string]any{}
	if patch.Status != nil {
		userFields["status"] = *patch.Status
	}
	if patch.Role != nil {
		userFields["role"] = *patch.Role
	}
	profileFields := make(map[string]any, len(patch.Profile))
	for k, v := range patch.Profile {
		profileFields[profileColumns[k]] = v
	}

	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.WithTx(tx).GetStatus(ctx, id); err != nil {
			return err
		}
		if err := s.userRepo.WithTx(tx).Update(ctx, id, userFields); err != nil {
			return errors.Wrap(err, "update user")
		}
		profiles := s.profileRepo.WithTx(tx)
		if err := profiles.Update(ctx, id, profileFields); err != nil {
			return errors.Wrap(err, "update profile")
		}
		if patch.MatchPreference == nil {
			return nil
		}
		pref, err := profiles.GetPreference(ctx, id)
		if repository.IsNotFound(err) {
			pref = &db.MatchPreference{UserID: id}
		} else if err != nil {
			return err
		}
		if err := account.ApplyPreference(pref, patch.MatchPreference.Input()); err != nil {
			return err
		}
		return profiles.UpsertPreference(ctx, pref)
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("user not found")
		}
		s.appCtx.Logger.Error("PatchUser failed", "user", id, "err", err)
		return nil, svcErr.Map(err)
	}

	if patch.Status != nil || patch.Role != nil {
		if err := s.appCtx.RedisCache.InvalidateUserStatus(ctx, id); err != nil {
			s.appCtx.Logger.Warn("status cache invalidation failed", "user", id, "err", err)
		}
	}
	s.appCtx.Logger.Info("user patched", "user", id, "actor", actorID)
	return s.GetUser(ctx, id)
}

// ModerationPage is one offset page of the moderation queue.
type ModerationPage struct {
	Profiles []dto.FullProfile `json:"profiles"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// ListModeration returns profiles in the given state (PENDING by default),
// oldest first. Pages are 1-based.
func (s *Service) ListModeration(ctx context.Context, status db.ModerationStatus, page, limit int) (*ModerationPage, error) {
	if status == "" {
		status = db.ModerationPending
	}
	if page < 1 {
		page = 1
	}
	limit = pagination.ClampLimit(limit)

	profiles, total, err := s.profileRepo.ListModeration(ctx, repository.ModerationFilter{
		Status: status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}

	now := s.now()
	out := &ModerationPage{Profiles: make([]dto.FullProfile, 0, len(profiles)), Total: total, Page: page, Limit: limit}
	for i := range profiles {
		out.Profiles = append(out.Profiles, dto.NewFullProfile(&profiles[i], now, true))
	}
	return out, nil
}

// SetModeration approves or rejects a profile. Only APPROVED profiles are
// discoverable.
func (s *Service) SetModeration(ctx context.Context, profileID string, status db.ModerationStatus) (*dto.FullProfile, error) {
	p, err := s.profileRepo.SetModeration(ctx, profileID, status)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("profile not found")
		}
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Info("profile moderated", "profile", profileID, "status", status)
	fp := dto.NewFullProfile(p, s.now(), true)
	return &fp, nil
}

type MatchmakerPage struct {
	Requests  []db.MatchmakerRequest `json:"requests"`
	NextToken *string                `json:"nextToken,omitempty"`
}

func (s *Service) ListMatchmakerRequests(ctx context.Context, status db.RequestStatus, token string, limit int) (*MatchmakerPage, error) {
	reqs, next, err := s.mmRepo.List(ctx, status, token, pagination.ClampLimit(limit))
	if err != nil {
		if _, decodeErr := pagination.Decode(token); decodeErr != nil {
			return nil, svcErr.InvalidArgument(decodeErr.Error())
		}
		return nil, svcErr.Map(err)
	}
	if reqs == nil {
		reqs = []db.MatchmakerRequest{}
	}
	return &MatchmakerPage{Requests: reqs, NextToken: next}, nil
}

// UpdateMatchmakerRequest moves a request along its workflow. Finished
// requests (COMPLETED, CANCELLED) are frozen.
func (s *Service) UpdateMatchmakerRequest(ctx context.Context, id string, status db.RequestStatus, notes *string) (*db.MatchmakerRequest, error) {
	cur, err := s.mmRepo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("request not found")
		}
		return nil, svcErr.Map(err)
	}
	if cur.Status == db.RequestCompleted || cur.Status == db.RequestCancelled {
		return nil, svcErr.InvalidArgument("request is already " + string(cur.Status))
	}

	req, err := s.mmRepo.Update(ctx, id, status, notes)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Info("matchmaker request updated", "request", id, "status", status)
	return req, nil
}

type OrderPage struct {
	Orders    []db.UnlockRecord `json:"orders"`
	NextToken *string           `json:"nextToken,omitempty"`
}

func (s *Service) ListOrders(ctx context.Context, status db.PaymentStatus, token string, limit int) (*OrderPage, error) {
	recs, next, err := s.unlockRepo.List(ctx, status, token, pagination.ClampLimit(limit))
	if err != nil {
		if _, decodeErr := pagination.Decode(token); decodeErr != nil {
			return nil, svcErr.InvalidArgument(decodeErr.Error())
		}
		return nil, svcErr.Map(err)
	}
	if recs == nil {
		recs = []db.UnlockRecord{}
	}
	return &OrderPage{Orders: recs, NextToken: next}, nil
}

// SettleOrder stands in for a payment provider callback.
func (s *Service) SettleOrder(ctx context.Context, orderID string, to db.PaymentStatus) (*db.UnlockRecord, error) {
	return s.conv.SettleOrder(ctx, orderID, to)
}

// Settings returns the current runtime settings snapshot.
func (s *Service) Settings() map[string]string {
	return s.appCtx.Settings.Values()
}

// UpdateSettings validates and stores the given keys, then reloads.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, svcErr.InvalidArgument("configs are required")
	}
	for k, v := range values {
		if err := settings.Validate(k, v); err != nil {
			return nil, svcErr.InvalidArgument(err.Error())
		}
	}
	if err := s.appCtx.Settings.Update(ctx, values); err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Info("settings updated", "keys", len(values))
	return s.appCtx.Settings.Values(), nil
}

func (s *Service) ReloadSettings(ctx context.Context) (map[string]string, error) {
	if err := s.appCtx.Settings.Reload(ctx); err != nil {
		return nil, svcErr.Map(err)
	}
	return s.appCtx.Settings.Values(), nil
}
