package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

const sampleColumns = `id, user_id, category, value_date, intensity, code, note, batch_id, created_at`

// PostgresStore persists samples in the samples table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) SaveSamples(ctx context.Context, samples []cycle.Sample) ([]cycle.Sample, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for sample save: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO samples (`+sampleColumns+`)
                                         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
                                         ON CONFLICT (id) DO UPDATE
                                         SET value_date = EXCLUDED.value_date, intensity = EXCLUDED.intensity,
                                             code = EXCLUDED.code, note = EXCLUDED.note
                                         WHERE samples.user_id = EXCLUDED.user_id
                                         RETURNING created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sample upsert: %w", err)
	}
	defer stmt.Close()

	saved := make([]cycle.Sample, 0, len(samples))
	for _, smp := range samples {
		if smp.UserID == "" || !smp.Category.Valid() {
			return nil, fmt.Errorf("%w: user %q category %q", cycle.ErrInvalidSample, smp.UserID, smp.Category)
		}
		if smp.ID == "" {
			smp.ID = uuid.NewString()
		}
		var createdAt sql.NullTime
		if !smp.CreatedAt.IsZero() {
			createdAt = sql.NullTime{Time: smp.CreatedAt, Valid: true}
		}

		err := stmt.QueryRowContext(ctx, smp.ID, smp.UserID, smp.Category, smp.ValueDateKey,
			smp.Intensity, smp.Code, smp.Text, smp.BatchID, createdAt).Scan(&smp.CreatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				// the id exists but belongs to another user
				return nil, fmt.Errorf("%w: %s", cycle.ErrNotFound, smp.ID)
			}
			return nil, fmt.Errorf("error saving sample %s: %w", smp.ID, err)
		}
		saved = append(saved, smp)
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sample save: %w", err)
	}
	return saved, nil
}

func (r *PostgresStore) DeleteSamples(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for sample delete: %w", err)
	}
	defer txn.Rollback()

	res, err := txn.ExecContext(ctx, `DELETE FROM samples WHERE user_id = $1 AND id = ANY($2::text[])`, userID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("error deleting samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error counting deleted samples: %w", err)
	}
	if int(n) != len(uniqueIDs(ids)) {
		return fmt.Errorf("%w: %d of %d samples exist", cycle.ErrNotFound, n, len(ids))
	}
	return txn.Commit()
}

func uniqueIDs(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (r *PostgresStore) ListBetween(ctx context.Context, userID string, categories []cycle.Category, from, to cycle.DateKey) ([]cycle.Sample, error) {
	query := `SELECT ` + sampleColumns + `
               FROM samples
               WHERE user_id = $1 AND category = ANY($2::text[]) AND value_date >= $3 AND value_date < $4
               ORDER BY value_date, created_at`
	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(categoryStrings(categories)), from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying samples between dates: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (r *PostgresStore) ListAll(ctx context.Context, userID string, category cycle.Category) ([]cycle.Sample, error) {
	query := `SELECT ` + sampleColumns + `
               FROM samples
               WHERE user_id = $1 AND category = $2
               ORDER BY value_date, created_at`
	rows, err := r.db.QueryContext(ctx, query, userID, category)
	if err != nil {
		return nil, fmt.Errorf("error querying samples by category: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

// Users lists every user with at least one stored sample.
func (r *PostgresStore) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM samples ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// Helper to scan multiple rows
func scanSamples(rows *sql.Rows) ([]cycle.Sample, error) {
	samples := make([]cycle.Sample, 0)
	for rows.Next() {
		smp := cycle.Sample{}
		if err := rows.Scan(
			&smp.ID, &smp.UserID, &smp.Category, &smp.ValueDateKey, &smp.Intensity,
			&smp.Code, &smp.Text, &smp.BatchID, &smp.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning sample row: %w", err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}
	return samples, nil
}

func categoryStrings(categories []cycle.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}
