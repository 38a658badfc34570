package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/db"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create appends a message. ID and CreatedAt are filled in on return.
func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListRecent returns up to limit of the newest messages of a match in
// chronological order (oldest of the window first).
func (r *MessageRepository) ListRecent(ctx context.Context, matchID string, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead stamps read_at on the counterpart's unread messages.
func (r *MessageRepository) MarkRead(ctx context.Context, matchID, readerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("match_id = ? AND sender_id <> ? AND read_at IS NULL", matchID, readerID).
		Update("read_at", gorm.Expr("CURRENT_TIMESTAMP"))
	return res.RowsAffected, res.Error
}

// CountUnread returns unread counts per match for the reader.
func (r *MessageRepository) CountUnread(ctx context.Context, matchIDs []string, readerID string) (map[string]int64, error) {
	out := make(map[string]int64, len(matchIDs))
	if len(matchIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		MatchID string
		N       int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Select("match_id, COUNT(*) AS n").
		Where("match_id IN ? AND sender_id <> ? AND read_at IS NULL", matchIDs, readerID).
		Group("match_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MatchID] = row.N
	}
	return out, nil
}

// Count returns the total number of messages.
func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Message{}).Count(&n).Error
	return n, err
}

// CountBySender returns how many messages userID has sent.
func (r *MessageRepository) CountBySender(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Message{}).Where("sender_id = ?", userID).Count(&n).Error
	return n, err
}
