package postgres

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/repository"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const selectColumns = `share_id, plan_data, owner_ref, is_active, access_count, last_accessed_at, expires_at, created_at, updated_at`

// PostgresSharedPlanRepository implements repository.SharedPlanRepository on a
// shared_plans table. The primary key on share_id decides racing creators.
type PostgresSharedPlanRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSharedPlanRepository(pool *pgxpool.Pool) *PostgresSharedPlanRepository {
	return &PostgresSharedPlanRepository{pool: pool}
}

func (s *PostgresSharedPlanRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shared_plans WHERE share_id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *PostgresSharedPlanRepository) Insert(ctx context.Context, plan *domain.SharedPlan) error {
	query := `INSERT INTO shared_plans (share_id, plan_data, owner_ref, is_active, access_count, last_accessed_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		plan.ShareID, string(plan.PlanData), plan.OwnerRef, plan.IsActive, plan.AccessCount,
		plan.LastAccessedAt, plan.ExpiresAt, plan.CreatedAt, plan.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

func (s *PostgresSharedPlanRepository) FindByID(ctx context.Context, id string) (*domain.SharedPlan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM shared_plans WHERE share_id = $1`, id)
	var plan domain.SharedPlan
	var data string
	err := row.Scan(&plan.ShareID, &data, &plan.OwnerRef, &plan.IsActive, &plan.AccessCount,
		&plan.LastAccessedAt, &plan.ExpiresAt, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	plan.PlanData = json.RawMessage(data)
	return &plan, nil
}

func (s *PostgresSharedPlanRepository) Update(ctx context.Context, id string, patch domain.SharePatch, at time.Time) error {
	var data any
	if patch.HasPlanData() {
		data = string(patch.PlanData)
	}
	query := `UPDATE shared_plans
		SET plan_data = COALESCE($2::text, plan_data),
		    is_active = COALESCE($3::boolean, is_active),
		    updated_at = $4
		WHERE share_id = $1`
	tag, err := s.pool.Exec(ctx, query, id, data, patch.IsActive, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordAccess only matches rows that are still active and unexpired, so a
// concurrent deactivation can never be counted as a read.
func (s *PostgresSharedPlanRepository) RecordAccess(ctx context.Context, id string, at time.Time) (int64, error) {
	query := `UPDATE shared_plans
		SET access_count = access_count + 1, last_accessed_at = $2
		WHERE share_id = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > $2)
		RETURNING access_count`
	var count int64
	err := s.pool.QueryRow(ctx, query, id, at).Scan(&count)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		exists, err := s.Exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, repository.ErrNotResolvable
		}
		return 0, repository.ErrNotFound
	}
	return count, nil
}

func (s *PostgresSharedPlanRepository) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM shared_plans WHERE share_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ repository.SharedPlanRepository = (*PostgresSharedPlanRepository)(nil)
