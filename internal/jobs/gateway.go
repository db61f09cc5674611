package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrGateway marks a failure of the delayed task infrastructure. Callers
// treat it as degraded rather than fatal: appointment state stays
// authoritative and every callback re-checks it.
var ErrGateway = errors.New("job scheduling gateway unavailable")

type Gateway struct {
	queue   Queue
	records RecordStore
	log     zerolog.Logger
	now     func() time.Time
}

func NewGateway(queue Queue, records RecordStore, log zerolog.Logger, now func() time.Time) *Gateway {
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		queue:   queue,
		records: records,
		log:     log.With().Str("component", "jobs.gateway").Logger(),
		now:     now,
	}
}

// Schedule enqueues p to run at runAt and records it against its
// appointment. An active job with the same key is canceled first.
func (g *Gateway) Schedule(ctx context.Context, runAt time.Time, p Payload) (string, error) {
	body, err := Encode(p)
	if err != nil {
		return "", err
	}

	if err := g.cancelWhere(ctx, p.AppointmentID(), func(r Record) bool { return r.Key == p.Key() }); err != nil {
		return "", err
	}

	taskID, err := g.queue.Enqueue(ctx, runAt, body)
	if err != nil {
		return "", fmt.Errorf("%w: enqueue %s: %w", ErrGateway, p.Kind(), err)
	}

	rec := Record{
		ID:            uuid.New(),
		AppointmentID: p.AppointmentID(),
		Kind:          p.Kind(),
		Key:           p.Key(),
		TaskID:        taskID,
		RunAt:         runAt.UTC(),
		CreatedAt:     g.now().UTC(),
	}
	if err := g.records.Insert(ctx, rec); err != nil {
		// an unrecorded task could never be disarmed
		if delErr := g.queue.Delete(ctx, taskID); delErr != nil {
			g.log.Warn().Err(delErr).Str("task_id", taskID).Msg("failed to drop unrecorded task")
		}
		return "", fmt.Errorf("%w: record %s: %w", ErrGateway, p.Kind(), err)
	}

	g.log.Debug().
		Str("appointment_id", rec.AppointmentID.String()).
		Str("job_kind", string(rec.Kind)).
		Str("task_id", taskID).
		Time("run_at", rec.RunAt).
		Msg("job scheduled")
	return taskID, nil
}

// CancelTasks removes tasks from the queue by id and forgets their records.
// Every id is attempted; those that could not be removed keep their records
// and are reported in the returned error.
func (g *Gateway) CancelTasks(ctx context.Context, taskIDs []string) error {
	var errs []error
	for _, id := range taskIDs {
		if err := g.queue.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		if err := g.records.DeleteByTaskID(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("record of task %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrGateway, errors.Join(errs...))
	}
	return nil
}

// CancelForAppointment disarms the appointment's jobs of the given kinds, or
// all of them when no kind is given. It is best effort: tasks that could not
// be removed keep their records and are reported in the returned error.
func (g *Gateway) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID, kinds ...Kind) error {
	return g.cancelWhere(ctx, appointmentID, func(r Record) bool {
		return len(kinds) == 0 || slices.Contains(kinds, r.Kind)
	})
}

func (g *Gateway) cancelWhere(ctx context.Context, appointmentID uuid.UUID, match func(Record) bool) error {
	recs, err := g.records.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGateway, err)
	}

	var taskIDs []string
	for _, r := range recs {
		if match(r) {
			taskIDs = append(taskIDs, r.TaskID)
		}
	}
	if len(taskIDs) == 0 {
		return nil
	}

	if err := g.CancelTasks(ctx, taskIDs); err != nil {
		g.log.Warn().
			Str("appointment_id", appointmentID.String()).
			Int("tasks", len(taskIDs)).
			Err(err).
			Msg("partial job cancellation")
		return err
	}
	return nil
}

// Complete forgets the record of a task that has fired.
func (g *Gateway) Complete(ctx context.Context, taskID string) error {
	if err := g.records.DeleteByTaskID(ctx, taskID); err != nil {
		return fmt.Errorf("%w: %w", ErrGateway, err)
	}
	return nil
}
