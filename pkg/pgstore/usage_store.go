package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/meterkit/pkg/pg"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

const usageColumns = `id, user_id, month, plan_id, count, created_at, updated_at`

// UsageStore implements usage.Store.
type UsageStore struct {
	db DB
}

func NewUsageStore(db DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Get(ctx context.Context, userID uuid.UUID, month string) (*usage.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+usageColumns+` FROM usage_records WHERE user_id = $1 AND month = $2`, userID, month)
	rec, err := scanRecord(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, usage.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *UsageStore) Insert(ctx context.Context, rec *usage.Record) error {
	_, err := s.db.Exec(ctx, `INSERT INTO usage_records (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.Month, rec.PlanID, rec.Count, rec.CreatedAt, rec.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return usage.ErrRecordExists
	}
	return err
}

func (s *UsageStore) SetPlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE usage_records SET plan_id = $2, updated_at = $3 WHERE id = $1`, id, planID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return usage.ErrRecordNotFound
	}
	return nil
}

// Increment is the only write that enforces the plan limit. A negative limit means unlimited.
func (s *UsageStore) Increment(ctx context.Context, id uuid.UUID, planID string, limit int64, at time.Time) (*usage.Record, error) {
	row := s.db.QueryRow(ctx, `UPDATE usage_records
		SET count = count + 1, plan_id = $2, updated_at = $4
		WHERE id = $1 AND ($3::BIGINT < 0 OR count < $3::BIGINT)
		RETURNING `+usageColumns,
		id, planID, limit, at,
	)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM usage_records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, usage.ErrRecordNotFound
	}
	return nil, usage.ErrLimitReached
}

func scanRecord(row pgx.Row) (*usage.Record, error) {
	var rec usage.Record
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Month, &rec.PlanID, &rec.Count, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

var _ usage.Store = (*UsageStore)(nil)
