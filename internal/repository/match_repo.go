package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/blinddate/internal/db"
)

// CanonicalPair orders two user IDs so the smaller one comes first.
// Every Match row is stored and looked up through it.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// MatchRepository owns the matches table.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Create inserts the match for the pair unless it already exists.
//
// The unique index on (user1_id, user2_id) arbitrates concurrent reciprocal
// likes: exactly one caller gets created == true.
func (r *MatchRepository) Create(ctx context.Context, a, b string) (*db.Match, bool, error) {
	u1, u2 := CanonicalPair(a, b)
	m := db.Match{User1ID: u1, User2ID: u2}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil && !isDuplicateKey(res.Error) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return &m, true, nil
	}

	existing, err := r.FindPair(ctx, u1, u2)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindPair looks up the match between two users in either order.
func (r *MatchRepository) FindPair(ctx context.Context, a, b string) (*db.Match, error) {
	u1, u2 := CanonicalPair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID returns gorm.ErrRecordNotFound when absent.
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListForUser returns every match the user belongs to, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	return matches, err
}

// Unlock flips is_unlocked from false to true.
//
// The WHERE clause includes is_unlocked = false, so only one of several
// concurrent unlocks changes the row. ok is false when the match was
// already unlocked (or does not exist).
func (r *MatchRepository) Unlock(ctx context.Context, id, by string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND is_unlocked = ?", id, false).
		Updates(map[string]any{
			"is_unlocked": true,
			"unlocked_by": by,
			"unlocked_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Count returns the total number of matches.
func (r *MatchRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Match{}).Count(&n).Error
	return n, err
}

// CountUnlocked returns how many matches have been unlocked.
func (r *MatchRepository) CountUnlocked(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Match{}).Where("is_unlocked = ?", true).Count(&n).Error
	return n, err
}

// LastMessages returns the newest message of each given match, keyed by
// match ID. Matches without messages are absent from the map.
func (r *MatchRepository) LastMessages(ctx context.Context, matchIDs []string) (map[string]db.Message, error) {
	out := make(map[string]db.Message, len(matchIDs))
	if len(matchIDs) == 0 {
		return out, nil
	}

	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Table("messages m").
		Where("m.match_id IN ?", matchIDs).
		Where("m.id = (SELECT MAX(m2.id) FROM messages m2 WHERE m2.match_id = m.match_id)").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.MatchID] = m
	}
	return out, nil
}

// IsNotFound reports gorm's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// CountForUser returns how many matches include userID.
func (r *MatchRepository) CountForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Count(&n).Error
	return n, err
}
