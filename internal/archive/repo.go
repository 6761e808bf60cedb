package archive

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Save inserts a turn. Redelivered messages carry the same id and are
// ignored.
func (r *Repo) Save(ctx context.Context, rec *TurnRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*TurnRecord, error) {
	var rec TurnRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListBySession returns turns in DESC id order (newest -> oldest).
func (r *Repo) ListBySession(ctx context.Context, sessionID string, limit int, beforeID string) ([]TurnRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}

	var out []TurnRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
