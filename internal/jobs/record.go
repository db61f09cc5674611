package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record ties a queued task to the appointment that armed it, so the task
// can be found and canceled by appointment id from any process.
type Record struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Kind          Kind
	Key           string
	TaskID        string
	RunAt         time.Time
	CreatedAt     time.Time
}

type RecordStore interface {
	Insert(ctx context.Context, r Record) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Record, error)
	DeleteByTaskID(ctx context.Context, taskID string) error
}

// Task is a claimed unit of work as stored on the queue.
type Task struct {
	ID   string
	Body []byte
}

// Queue is the delayed delivery mechanism behind the gateway.
type Queue interface {
	Enqueue(ctx context.Context, runAt time.Time, body []byte) (string, error)
	Delete(ctx context.Context, taskIDs ...string) error
}

// ClaimingQueue is the consumer side used by the dispatcher.
type ClaimingQueue interface {
	Queue
	Claim(ctx context.Context, now time.Time, limit int) ([]Task, error)
	Ack(ctx context.Context, taskID string) error
}
