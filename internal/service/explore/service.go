package explore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/dto"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/repository"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

// Service implements discovery and the like/match engine.
// It contains the business logic on top of repository and cache layers.
type Service struct {
	appCtx      *app.AppContext
	likeRepo    *repository.LikeRepository
	matchRepo   *repository.MatchRepository
	profileRepo *repository.ProfileRepository
	userRepo    *repository.UserRepository

	now func() time.Time
}

// NewExploreService creates a new Explore service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (via the like, match, profile and user repositories)
//   - RedisCache for counters from AppContext
//   - the event publisher for new matches
func NewExploreService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		likeRepo:    repository.NewLikeRepository(appCtx.DB),
		matchRepo:   repository.NewMatchRepository(appCtx.DB),
		profileRepo: repository.NewProfileRepository(appCtx.DB),
		userRepo:    repository.NewUserRepository(appCtx.DB),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Discover returns up to one page of candidate profiles for the viewer.
//
// Behavior:
//   - Only APPROVED profiles of ACTIVE users, never the viewer.
//   - Anyone the viewer already liked is left out.
//   - Every preference field the viewer has set narrows the result.
//   - Newest profiles first.
//
// Example:
//
//	svc.Discover(ctx, "u42")
func (s *Service) Discover(ctx context.Context, viewerID string) ([]dto.PublicProfile, error) {
	s.appCtx.Logger.Debug("Discover called", "viewer", viewerID)

	q := repository.DiscoverQuery{
		ViewerID: viewerID,
		Now:      s.now(),
		Limit:    s.pageSize(),
	}

	pref, err := s.profileRepo.GetPreference(ctx, viewerID)
	switch {
	case err == nil:
		q.Gender = pref.GenderPref
		q.MinAge, q.MaxAge = pref.MinAge, pref.MaxAge
		q.MinHeight, q.MaxHeight = pref.MinHeight, pref.MaxHeight
		q.Education = pref.EducationPref
		q.City = pref.CityPref
	case repository.IsNotFound(err):
		// no stored preference, no extra filters
	default:
		s.appCtx.Logger.Error("GetPreference failed", "viewer", viewerID, "err", err)
		return nil, svcErr.Map(err)
	}

	profiles, err := s.profileRepo.Discover(ctx, q)
	if err != nil {
		s.appCtx.Logger.Error("Discover failed", "viewer", viewerID, "err", err)
		return nil, svcErr.Map(err)
	}

	out := make([]dto.PublicProfile, 0, len(profiles))
	for i := range profiles {
		out = append(out, dto.NewPublicProfile(&profiles[i], q.Now))
	}

	s.appCtx.Logger.Debug("Discover result", "viewer", viewerID, "count", len(out))
	return out, nil
}

// LikeResult reports what RecordLike did.
type LikeResult struct {
	Liked   bool   `json:"liked"`
	Matched bool   `json:"matched"`
	MatchID string `json:"matchId,omitempty"`
}

// RecordLike stores from -> to and forms a match when the like is mutual.
//
// Behavior:
//   - Validates the target (non-empty, not yourself, must exist).
//   - Liking twice is not an error; nothing new is written.
//   - When the reverse like exists the match is created for the canonical
//     pair. Matched is true only for the call that created it.
//   - Bumps the target's cached "liked you" counter and publishes
//     match.created after commit.
//
// Example:
//
//	svc.RecordLike(ctx, "a", "b") // -> {Liked: true, Matched: false}
func (s *Service) RecordLike(ctx context.Context, fromID, toID string) (*LikeResult, error) {
	s.appCtx.Logger.Debug("RecordLike called", "from", fromID, "to", toID)

	toID = strings.TrimSpace(toID)
	if toID == "" {
		return nil, svcErr.InvalidArgument("toUserId is required")
	}
	if fromID == toID {
		return nil, svcErr.InvalidArgument("cannot like yourself")
	}

	if _, err := s.userRepo.GetStatus(ctx, toID); err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("user not found")
		}
		return nil, svcErr.Map(err)
	}

	var (
		created bool
		matched bool
		matchID string
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.likeRepo.WithTx(tx).CreateLike(ctx, fromID, toID)
		if err != nil {
			return errors.Wrap(err, "create like")
		}

		// check if target also liked the caller → mutual
		mutual, err := s.likeRepo.WithTx(tx).HasLiked(ctx, toID, fromID)
		if err != nil {
			return errors.Wrap(err, "check reverse like")
		}
		if !mutual {
			return nil
		}

		m, isNew, err := s.matchRepo.WithTx(tx).Create(ctx, fromID, toID)
		if err != nil {
			return errors.Wrap(err, "create match")
		}
		matched = isNew
		matchID = m.ID
		return nil
	})
	if err != nil {
		s.appCtx.Logger.Error("RecordLike failed", "from", fromID, "to", toID, "err", err)
		return nil, svcErr.Map(err)
	}

	// update cache
	if created {
		if err := s.appCtx.RedisCache.IncrLikeCount(ctx, toID); err != nil {
			s.appCtx.Logger.Warn("like counter update failed", "user", toID, "err", err)
		}
	}

	if matched {
		u1, u2 := repository.CanonicalPair(fromID, toID)
		s.publish(ctx, events.Event{
			Type:    events.TypeMatchCreated,
			MatchID: matchID,
			UserIDs: []string{u1, u2},
			ActorID: fromID,
		})
	}

	res := &LikeResult{Liked: true, Matched: matched}
	if matched {
		res.MatchID = matchID
	}
	s.appCtx.Logger.Debug("RecordLike result", "from", fromID, "to", toID, "created", created, "matched", matched)
	return res, nil
}

// CountLikedYou returns how many users liked the caller.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID).
//  2. If cache miss or parse error, falls back to DB via repository.CountLikers.
//  3. On DB fetch, updates Redis with a 1h TTL.
//
// Example:
//
//	svc.CountLikedYou(ctx, "u42")
func (s *Service) CountLikedYou(ctx context.Context, userID string) (int64, error) {
	s.appCtx.Logger.Debug("CountLikedYou called", "user", userID)

	// try cache first
	n, ok, err := s.appCtx.RedisCache.GetLikeCount(ctx, userID)
	if err != nil {
		s.appCtx.Logger.Warn("like counter read failed", "user", userID, "err", err)
	}
	if ok {
		return n, nil
	}

	// fallback: DB
	count, err := s.likeRepo.CountLikers(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}

	if err := s.appCtx.RedisCache.SetLikeCount(ctx, userID, count); err != nil {
		s.appCtx.Logger.Warn("like counter write failed", "user", userID, "err", err)
	}
	return count, nil
}

// Liker is one entry of the "liked you" list.
type Liker struct {
	UserID  string             `json:"userId"`
	LikedAt time.Time          `json:"likedAt"`
	Profile *dto.PublicProfile `json:"profile,omitempty"`
}

// LikedYouPage is one page of likers plus the token for the next.
type LikedYouPage struct {
	Likers    []Liker `json:"likers"`
	NextToken *string `json:"nextToken,omitempty"`
}

// ListLikedYou returns all users who liked the caller, newest first.
//
// Behavior:
//   - Fetches likes for the caller via repository.GetLikers.
//   - Supports cursor-based pagination with paginationToken.
//   - Attaches the public profile of each liker when present.
//
// Example:
//
//	svc.ListLikedYou(ctx, "u42", "", 20)
func (s *Service) ListLikedYou(ctx context.Context, userID, paginationToken string, limit int) (*LikedYouPage, error) {
	s.appCtx.Logger.Debug("ListLikedYou called", "user", userID, "token", paginationToken)

	likes, nextToken, err := s.likeRepo.GetLikers(ctx, userID, paginationToken, pagination.ClampLimit(limit))
	if err != nil {
		if _, decodeErr := pagination.Decode(paginationToken); decodeErr != nil {
			return nil, svcErr.InvalidArgument(decodeErr.Error())
		}
		s.appCtx.Logger.Error("GetLikers failed", "err", err)
		return nil, svcErr.Map(err)
	}

	ids := make([]string, 0, len(likes))
	for _, l := range likes {
		ids = append(ids, l.FromUserID)
	}
	profiles, err := s.profileRepo.GetByUserIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	now := s.now()
	page := &LikedYouPage{Likers: make([]Liker, 0, len(likes)), NextToken: nextToken}
	for _, l := range likes {
		liker := Liker{UserID: l.FromUserID, LikedAt: l.CreatedAt}
		if p, ok := profiles[l.FromUserID]; ok {
			pub := dto.NewPublicProfile(&p, now)
			liker.Profile = &pub
		}
		page.Likers = append(page.Likers, liker)
	}

	s.appCtx.Logger.Debug("ListLikedYou result", "liker_count", len(page.Likers))
	return page, nil
}

func (s *Service) pageSize() int {
	if n := s.appCtx.Config.Discovery.PageSize; n > 0 {
		return n
	}
	return pagination.DefaultLimit
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.appCtx.Events.Publish(ctx, e); err != nil {
		s.appCtx.Logger.Warn("event publish failed", "type", e.Type, "match", e.MatchID, "err", err)
	}
}
