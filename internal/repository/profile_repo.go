package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/blinddate/internal/db"
)

// ProfileRepository owns profiles and match preferences, and runs the
// discovery query.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// GetByUserID returns gorm.ErrRecordNotFound when the user has no profile.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*db.Profile, error) {
	var p db.Profile
	if err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByUserIDs loads profiles keyed by user ID. Missing users are skipped.
func (r *ProfileRepository) GetByUserIDs(ctx context.Context, userIDs []string) (map[string]db.Profile, error) {
	out := make(map[string]db.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var profiles []db.Profile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

// Update applies a column map to the user's profile.
func (r *ProfileRepository) Update(ctx context.Context, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&db.Profile{}).Where("user_id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetPreference returns gorm.ErrRecordNotFound when none is stored.
func (r *ProfileRepository) GetPreference(ctx context.Context, userID string) (*db.MatchPreference, error) {
	var p db.MatchPreference
	if err := r.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPreference replaces the user's preference row. A loaded row (ID set)
// is saved in place.
func (r *ProfileRepository) UpsertPreference(ctx context.Context, pref *db.MatchPreference) error {
	if pref.ID != "" {
		return r.db.WithContext(ctx).Save(pref).Error
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"min_age", "max_age", "min_height", "max_height",
				"gender_pref", "education_pref", "city_pref", "description", "updated_at",
			}),
		}).
		Create(pref).Error
}

// DiscoverQuery is the viewer plus whatever preference filters are set.
// Nil fields do not filter.
type DiscoverQuery struct {
	ViewerID  string
	Gender    *db.Gender
	MinAge    *int
	MaxAge    *int
	MinHeight *int
	MaxHeight *int
	Education *string
	City      *string
	Now       time.Time
	Limit     int
}

// Discover returns candidate profiles for the viewer.
//
// Behavior:
//   - Only APPROVED profiles of ACTIVE users.
//   - Excludes the viewer and anyone the viewer already liked (NOT EXISTS).
//   - Ages translate to birth-date bounds relative to q.Now.
//   - Newest profiles first, id as tie-break.
func (r *ProfileRepository) Discover(ctx context.Context, q DiscoverQuery) ([]db.Profile, error) {
	var profiles []db.Profile

	query := r.db.WithContext(ctx).
		Table("profiles p").
		Select("p.*").
		Joins("JOIN users u ON u.id = p.user_id").
		Where("u.status = ?", db.UserActive).
		Where("p.moderation_status = ?", db.ModerationApproved).
		Where("p.user_id <> ?", q.ViewerID).
		Where(`NOT EXISTS (
			SELECT 1 FROM likes l
			WHERE l.from_user_id = ? AND l.to_user_id = p.user_id
		)`, q.ViewerID)

	if q.Gender != nil {
		query = query.Where("p.gender = ?", *q.Gender)
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	// age >= min  <=>  born on or before now - min years
	if q.MinAge != nil {
		query = query.Where("p.birth_date <= ?", now.AddDate(-*q.MinAge, 0, 0))
	}
	// age <= max  <=>  born after now - (max+1) years
	if q.MaxAge != nil {
		query = query.Where("p.birth_date > ?", now.AddDate(-(*q.MaxAge + 1), 0, 0))
	}
	if q.MinHeight != nil {
		query = query.Where("p.height >= ?", *q.MinHeight)
	}
	if q.MaxHeight != nil {
		query = query.Where("p.height <= ?", *q.MaxHeight)
	}
	if q.Education != nil && *q.Education != "" {
		query = query.Where("p.education = ?", *q.Education)
	}
	if q.City != nil && *q.City != "" {
		query = query.Where("p.city = ?", *q.City)
	}

	err := query.
		Order("p.created_at DESC, p.id DESC").
		Limit(q.Limit).
		Find(&profiles).Error
	return profiles, err
}

// ModerationFilter narrows the moderation queue.
type ModerationFilter struct {
	Status db.ModerationStatus
	Offset int
	Limit  int
}

// ListModeration returns a page of profiles, oldest first, with the total.
func (r *ProfileRepository) ListModeration(ctx context.Context, f ModerationFilter) ([]db.Profile, int64, error) {
	q := r.db.WithContext(ctx).Model(&db.Profile{})
	if f.Status != "" {
		q = q.Where("moderation_status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var profiles []db.Profile
	err := q.Order("created_at ASC, id ASC").Offset(f.Offset).Limit(f.Limit).Find(&profiles).Error
	if err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

// SetModeration updates the moderation status of one profile by its ID.
func (r *ProfileRepository) SetModeration(ctx context.Context, profileID string, status db.ModerationStatus) (*db.Profile, error) {
	var p db.Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", profileID).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&p).Update("moderation_status", status).Error; err != nil {
		return nil, err
	}
	p.Moderation = status
	return &p, nil
}

// CountByModeration returns profile totals keyed by moderation status.
func (r *ProfileRepository) CountByModeration(ctx context.Context) (map[db.ModerationStatus]int64, error) {
	var rows []struct {
		Status db.ModerationStatus
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Select("moderation_status AS status, COUNT(*) AS n").
		Group("moderation_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[db.ModerationStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
