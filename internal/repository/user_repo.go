package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

// UserRepository owns users together with their profile and preference rows.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// CreateWithProfile inserts the user, profile and preference in one go.
// Callers wanting atomicity pass a repository bound to a transaction.
func (r *UserRepository) CreateWithProfile(ctx context.Context, u *db.User, p *db.Profile, pref *db.MatchPreference) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Create(u).Error; err != nil {
		return err
	}
	p.UserID = u.ID
	if err := tx.Create(p).Error; err != nil {
		return err
	}
	if pref != nil {
		pref.UserID = u.ID
		if err := tx.Create(pref).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetByID loads the user with profile and preference.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Preload("MatchPreference").
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail matches case-insensitively on the stored lower-case email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetStatus reads only the status column, used by the session middleware.
func (r *UserRepository) GetStatus(ctx context.Context, id string) (db.UserStatus, error) {
	var u db.User
	err := r.db.WithContext(ctx).Select("id", "status").First(&u, "id = ?", id).Error
	if err != nil {
		return "", err
	}
	return u.Status, nil
}

// GetAccess returns the live status and role used to authorize a session.
func (r *UserRepository) GetAccess(ctx context.Context, id string) (db.UserStatus, db.Role, error) {
	var u db.User
	err := r.db.WithContext(ctx).Select("id", "status", "role").First(&u, "id = ?", id).Error
	if err != nil {
		return "", "", err
	}
	return u.Status, u.Role, nil
}

// Update applies a column map to the user row.
func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UserFilter narrows the admin user list.
type UserFilter struct {
	Status db.UserStatus
	Role   db.Role
	Search string
}

// List returns a page of users with profiles, newest first.
//
// Behavior:
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//   - Search matches email or profile name, case-insensitively.
func (r *UserRepository) List(
	ctx context.Context,
	f UserFilter,
	paginationToken string,
	limit int,
) ([]db.User, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Preload("Profile").
		Order("users.created_at DESC, users.id DESC").
		Limit(limit + 1)
	if f.Status != "" {
		q = q.Where("users.status = ?", f.Status)
	}
	if f.Role != "" {
		q = q.Where("users.role = ?", f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where(
			"(LOWER(users.email) LIKE ? OR EXISTS (SELECT 1 FROM profiles p WHERE p.user_id = users.id AND LOWER(p.name) LIKE ?))",
			like, like,
		)
	}
	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		q = q.Where(
			"(users.created_at < ? OR (users.created_at = ? AND users.id < ?))",
			ts, ts, cursor.ID,
		)
	}

	var users []db.User
	if err := q.Find(&users).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(users) > limit {
		last := users[limit-1]
		token, _ := pagination.Encode(pagination.After(last.ID, last.CreatedAt))
		nextToken = &token
		users = users[:limit]
	}
	return users, nextToken, nil
}

// CountByStatus returns user totals keyed by status.
func (r *UserRepository) CountByStatus(ctx context.Context) (map[db.UserStatus]int64, error) {
	var rows []struct {
		Status db.UserStatus
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[db.UserStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
