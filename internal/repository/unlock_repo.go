package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

// UnlockRepository stores unlock attempts, shown as orders in the admin API.
type UnlockRepository struct {
	db *gorm.DB
}

func NewUnlockRepository(database *gorm.DB) *UnlockRepository {
	return &UnlockRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *UnlockRepository) WithTx(tx *gorm.DB) *UnlockRepository {
	return &UnlockRepository{db: tx}
}

func (r *UnlockRepository) Create(ctx context.Context, rec *db.UnlockRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *UnlockRepository) GetByID(ctx context.Context, id string) (*db.UnlockRecord, error) {
	var rec db.UnlockRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindPending returns the open order of a match, or nil when there is none.
func (r *UnlockRepository) FindPending(ctx context.Context, matchID string) (*db.UnlockRecord, error) {
	var recs []db.UnlockRecord
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND status = ?", matchID, db.PaymentPending).
		Order("created_at ASC").
		Limit(1).
		Find(&recs).Error
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// TransitionStatus moves a record from one status to another. ok is false
// when the record is no longer in the from status.
func (r *UnlockRepository) TransitionStatus(ctx context.Context, id string, from, to db.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.UnlockRecord{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns orders newest first, optionally filtered by status.
func (r *UnlockRepository) List(
	ctx context.Context,
	status db.PaymentStatus,
	paginationToken string,
	limit int,
) ([]db.UnlockRecord, *string, error) {
	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var recs []db.UnlockRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(recs) > limit {
		last := recs[limit-1]
		token, _ := pagination.Encode(pagination.After(last.ID, last.CreatedAt))
		nextToken = &token
		recs = recs[:limit]
	}
	return recs, nextToken, nil
}

// CompletedTotals returns the number of completed orders and their sum.
func (r *UnlockRepository) CompletedTotals(ctx context.Context) (count int64, revenueCents int64, err error) {
	var row struct {
		N     int64
		Total int64
	}
	err = r.db.WithContext(ctx).
		Model(&db.UnlockRecord{}).
		Select("COUNT(*) AS n, COALESCE(SUM(amount_cents), 0) AS total").
		Where("status = ?", db.PaymentCompleted).
		Scan(&row).Error
	return row.N, row.Total, err
}
