package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRecordStore struct {
	pool *pgxpool.Pool
}

func NewPgRecordStore(pool *pgxpool.Pool) *PgRecordStore {
	return &PgRecordStore{pool: pool}
}

func (s *PgRecordStore) Insert(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, appointment_id, job_kind, job_key, task_id, run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id, job_key) DO UPDATE
		SET job_kind = EXCLUDED.job_kind,
		    task_id = EXCLUDED.task_id,
		    run_at = EXCLUDED.run_at,
		    created_at = EXCLUDED.created_at
	`, r.ID, r.AppointmentID, r.Kind, r.Key, r.TaskID, r.RunAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled job: %w", err)
	}
	return nil
}

func (s *PgRecordStore) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, job_kind, job_key, task_id, run_at, created_at
		FROM scheduled_jobs
		WHERE appointment_id = $1
		ORDER BY run_at
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AppointmentID, &r.Kind, &r.Key, &r.TaskID, &r.RunAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgRecordStore) DeleteByTaskID(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scheduled_jobs WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete scheduled job by task: %w", err)
	}
	return nil
}
