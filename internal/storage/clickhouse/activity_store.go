package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/storage"
)

// ActivityStore implements storage.ActivityStore using ClickHouse.
// MergeTree does not enforce keys, so Insert checks for the id first.
type ActivityStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewActivityStore creates a new ActivityStore. metrics may be nil.
func NewActivityStore(conn *Conn, metrics *observability.Metrics) *ActivityStore {
	return &ActivityStore{conn: conn, metrics: metrics}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

const activityColumns = `id, kind, mint, identity, signature, explorer_url, status, error, created_at`

func (s *ActivityStore) observe(op string, start time.Time, err *error) {
	s.metrics.RecordDBQuery("clickhouse", op, time.Since(start), *err)
}

// Insert adds a new activity. Returns ErrDuplicateKey if id exists.
func (s *ActivityStore) Insert(ctx context.Context, a *domain.Activity) (err error) {
	if err := storage.ValidateActivity(a); err != nil {
		return err
	}
	defer s.observe("insert", time.Now(), &err)

	exists, err := s.exists(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO token_activity (`+activityColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	err = batch.Append(
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
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves an activity by its ID. Returns ErrNotFound if not exists.
func (s *ActivityStore) GetByID(ctx context.Context, id string) (_ *domain.Activity, err error) {
	defer s.observe("get_by_id", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `SELECT `+activityColumns+` FROM token_activity FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	defer rows.Close()

	result, err := scanActivities(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// ListByIdentity returns up to limit activities of identity, newest first.
func (s *ActivityStore) ListByIdentity(ctx context.Context, identity string, limit int) (_ []*domain.Activity, err error) {
	defer s.observe("list_by_identity", time.Now(), &err)

	query := `
		SELECT ` + activityColumns + `
		FROM token_activity FINAL
		WHERE identity = ?
		ORDER BY created_at DESC, id ASC
	`
	args := []interface{}{identity}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by identity: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListByMint returns all activities for a mint, oldest first.
func (s *ActivityStore) ListByMint(ctx context.Context, mint string) (_ []*domain.Activity, err error) {
	defer s.observe("list_by_mint", time.Now(), &err)

	query := `
		SELECT ` + activityColumns + `
		FROM token_activity FINAL
		WHERE mint = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

func (s *ActivityStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM token_activity WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanActivities scans multiple rows.
func scanActivities(rows chRows) ([]*domain.Activity, error) {
	var result []*domain.Activity
	for rows.Next() {
		var a domain.Activity
		var kind, status string
		if err := rows.Scan(
			&a.ID,
			&kind,
			&a.Mint,
			&a.Identity,
			&a.Signature,
			&a.ExplorerURL,
			&status,
			&a.Error,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind = domain.ActivityKind(kind)
		a.Status = domain.ActivityStatus(status)
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
