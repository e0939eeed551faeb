package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/turbo/internal/jobs"
)

const instanceColumns = `id, job_definition_id, derived_id, group_path, record, created_at, updated_at`

// instanceRepository implements jobs.InstanceRepository using SQLite.
type instanceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newInstanceRepository(db *sql.DB) *instanceRepository {
	return &instanceRepository{db: db, now: time.Now}
}

// Ensure instanceRepository implements jobs.InstanceRepository.
var _ jobs.InstanceRepository = (*instanceRepository)(nil)

func scanInstance(scanner interface{ Scan(...any) error }) (*InstanceModel, error) {
	var model InstanceModel
	err := scanner.Scan(
		&model.ID, &model.JobDefinitionID, &model.DerivedID, &model.GroupPath,
		&model.Record, &model.CreatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Save inserts the record, or replaces the stored one with the same id.
// created_at is kept on replace.
func (r *instanceRepository) Save(ctx context.Context, rec jobs.Record) error {
	model, err := toInstanceModel(rec, r.now())
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO job_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_definition_id = excluded.job_definition_id,
			derived_id = excluded.derived_id,
			group_path = excluded.group_path,
			record = excluded.record,
			updated_at = excluded.updated_at`,
		model.ID, model.JobDefinitionID, model.DerivedID, model.GroupPath,
		model.Record, model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	return nil
}

// FindByID returns the record stored under id.
// Returns InstanceNotFoundError if no matching instance exists.
func (r *instanceRepository) FindByID(ctx context.Context, id string) (jobs.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM job_instances WHERE id = ?`, id)
	model, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Record{}, &InstanceNotFoundError{ID: id}
	}
	if err != nil {
		return jobs.Record{}, fmt.Errorf("failed to find instance: %w", err)
	}
	return model.toRecord()
}

// List returns every stored record, oldest first.
func (r *instanceRepository) List(ctx context.Context) ([]jobs.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+instanceColumns+` FROM job_instances ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []jobs.Record
	for rows.Next() {
		model, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		rec, err := model.toRecord()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}
	return recs, nil
}

// Delete removes the record stored under id.
// Returns InstanceNotFoundError if no matching instance exists.
func (r *instanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM job_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &InstanceNotFoundError{ID: id}
	}
	return nil
}
