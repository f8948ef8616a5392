package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/storage"
)

// ActivityStore implements storage.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewActivityStore creates a new ActivityStore. metrics may be nil.
func NewActivityStore(pool *Pool, metrics *observability.Metrics) *ActivityStore {
	return &ActivityStore{pool: pool, metrics: metrics}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

const activityColumns = `id, kind, mint, identity, signature, explorer_url, status, error, created_at`

// observe records a query; err is read when the deferred call runs.
func (s *ActivityStore) observe(op string, start time.Time, err *error) {
	s.metrics.RecordDBQuery("postgres", op, time.Since(start), *err)
}

// Insert adds a new activity. Returns ErrDuplicateKey if id exists.
func (s *ActivityStore) Insert(ctx context.Context, a *domain.Activity) (err error) {
	if err := storage.ValidateActivity(a); err != nil {
		return err
	}
	defer s.observe("insert", time.Now(), &err)

	query := `
		INSERT INTO token_activity (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		a.ID,
		string(a.Kind),
		a.Mint,
		a.Identity,
		a.Signature,
		a.ExplorerURL,
		string(a.Status),
		a.Error,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// GetByID retrieves an activity by its ID. Returns ErrNotFound if not exists.
func (s *ActivityStore) GetByID(ctx context.Context, id string) (_ *domain.Activity, err error) {
	defer s.observe("get_by_id", time.Now(), &err)

	query := `SELECT ` + activityColumns + ` FROM token_activity WHERE id = $1`

	a, err := scanActivity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get activity by id: %w", err)
	}
	return a, nil
}

// ListByIdentity returns up to limit activities of identity, newest first.
func (s *ActivityStore) ListByIdentity(ctx context.Context, identity string, limit int) (_ []*domain.Activity, err error) {
	defer s.observe("list_by_identity", time.Now(), &err)

	query := `
		SELECT ` + activityColumns + `
		FROM token_activity
		WHERE identity = $1
		ORDER BY created_at DESC, id ASC
	`
	args := []interface{}{identity}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity by identity: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListByMint returns all activities for a mint, oldest first.
func (s *ActivityStore) ListByMint(ctx context.Context, mint string) (_ []*domain.Activity, err error) {
	defer s.observe("list_by_mint", time.Now(), &err)

	query := `
		SELECT ` + activityColumns + `
		FROM token_activity
		WHERE mint = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("list activity by mint: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// scanActivity scans a single row into an Activity.
func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	var kind, status string

	err := row.Scan(
		&a.ID,
		&kind,
		&a.Mint,
		&a.Identity,
		&a.Signature,
		&a.ExplorerURL,
		&status,
		&a.Error,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActivityKind(kind)
	a.Status = domain.ActivityStatus(status)
	return &a, nil
}

// scanActivities scans multiple rows into a slice of Activity.
func scanActivities(rows pgx.Rows) ([]*domain.Activity, error) {
	var result []*domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return result, nil
}
