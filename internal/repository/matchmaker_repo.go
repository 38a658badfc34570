package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/utils/pagination"
)

type MatchmakerRepository struct {
	db *gorm.DB
}

func NewMatchmakerRepository(database *gorm.DB) *MatchmakerRepository {
	return &MatchmakerRepository{db: database}
}

func (r *MatchmakerRepository) Create(ctx context.Context, req *db.MatchmakerRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *MatchmakerRepository) GetByID(ctx context.Context, id string) (*db.MatchmakerRequest, error) {
	var req db.MatchmakerRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Update changes status and, when notes is non-nil, the notes.
func (r *MatchmakerRepository) Update(ctx context.Context, id string, status db.RequestStatus, notes *string) (*db.MatchmakerRequest, error) {
	req, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"status": status}
	if notes != nil {
		fields["notes"] = *notes
	}
	if err := r.db.WithContext(ctx).Model(req).Updates(fields).Error; err != nil {
		return nil, err
	}
	req.Status = status
	if notes != nil {
		req.Notes = notes
	}
	return req, nil
}

// List returns requests newest first, optionally filtered by status.
func (r *MatchmakerRepository) List(
	ctx context.Context,
	status db.RequestStatus,
	paginationToken string,
	limit int,
) ([]db.MatchmakerRequest, *string, error) {
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

	var reqs []db.MatchmakerRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(reqs) > limit {
		last := reqs[limit-1]
		token, _ := pagination.Encode(pagination.After(last.ID, last.CreatedAt))
		nextToken = &token
		reqs = reqs[:limit]
	}
	return reqs, nextToken, nil
}

// CountByStatus counts requests in the given status.
func (r *MatchmakerRepository) CountByStatus(ctx context.Context, status db.RequestStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.MatchmakerRequest{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
