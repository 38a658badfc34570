package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

// LikeRepository provides data access methods for the Like model.
// It encapsulates all queries on the directed like edges between users.
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB) *LikeRepository {
	return &LikeRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *LikeRepository) WithTx(tx *gorm.DB) *LikeRepository {
	return &LikeRepository{db: tx}
}

// CreateLike inserts the edge from -> to.
//
// Behavior:
//   - If the (from_user_id, to_user_id) pair exists nothing is written and
//     created is false. The composite PK is the duplicate guard.
//   - A duplicate-key error from a racing insert is treated the same way.
//
// Example:
//
//	created, err := repo.CreateLike(ctx, "a", "b") // user a liked user b
func (r *LikeRepository) CreateLike(ctx context.Context, fromID, toID string) (bool, error) {
	like := db.Like{FromUserID: fromID, ToUserID: toID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "from_user_id"}, {Name: "to_user_id"}},
			DoNothing: true,
		}).
		Create(&like)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasLiked checks whether from has liked to.
//
// Example:
//
//	repo.HasLiked(ctx, "a", "b") // -> true if user a liked user b
func (r *LikeRepository) HasLiked(ctx context.Context, fromID, toID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		Count(&count).Error
	return count > 0, err
}

// GetLikers returns the likes received by a user, newest first.
//
// Behavior:
//   - Ordered by created_at DESC, from_user_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.GetLikers(ctx, "u42", "", 20) // first 20 people who liked u42
func (r *LikeRepository) GetLikers(
	ctx context.Context,
	toID string,
	paginationToken string,
	limit int,
) ([]db.Like, *string, error) {
	var likes []db.Like

	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.to_user_id = ?", toID).
		Order("l.created_at DESC, l.from_user_id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		query = query.Where(
			"(l.created_at < ? OR (l.created_at = ? AND l.from_user_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.After(last.FromUserID, last.CreatedAt))
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// CountLikers returns how many users liked the given user.
// Used in conjunction with the Redis cache (DB is the fallback).
func (r *LikeRepository) CountLikers(ctx context.Context, toID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("to_user_id = ?", toID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountGiven returns how many likes the user has sent.
func (r *LikeRepository) CountGiven(ctx context.Context, fromID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("from_user_id = ?", fromID).
		Count(&count).Error
	return count, err
}
