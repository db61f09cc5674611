package testfixtures

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/jobs"
)

var ErrQueueDown = errors.New("queue unavailable")

type queuedTask struct {
	id        string
	runAt     time.Time
	body      []byte
	inflight  bool
	redeliver time.Time
}

// MemoryQueue implements jobs.ClaimingQueue with the same visibility
// semantics as the Redis queue.
type MemoryQueue struct {
	mu         sync.Mutex
	tasks      map[string]*queuedTask
	visibility time.Duration

	failEnqueue bool
	failDelete  map[string]bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks:      make(map[string]*queuedTask),
		visibility: time.Minute,
		failDelete: make(map[string]bool),
	}
}

// FailEnqueue makes every Enqueue fail until reset.
func (q *MemoryQueue) FailEnqueue(on bool) {
	q.mu.Lock()
	q.failEnqueue = on
	q.mu.Unlock()
}

// FailDeleteOf makes deleting the given task fail.
func (q *MemoryQueue) FailDeleteOf(taskID string) {
	q.mu.Lock()
	q.failDelete[taskID] = true
	q.mu.Unlock()
}

func (q *MemoryQueue) Enqueue(_ context.Context, runAt time.Time, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failEnqueue {
		return "", ErrQueueDown
	}
	id := uuid.NewString()
	q.tasks[id] = &queuedTask{id: id, runAt: runAt, body: append([]byte(nil), body...)}
	return id, nil
}

func (q *MemoryQueue) Delete(_ context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		if q.failDelete[id] {
			return ErrQueueDown
		}
	}
	for _, id := range ids {
		delete(q.tasks, id)
	}
	return nil
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	return q.Delete(ctx, id)
}

func (q *MemoryQueue) Claim(_ context.Context, now time.Time, limit int) ([]jobs.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*queuedTask
	for _, t := range q.tasks {
		ready := !t.runAt.After(now)
		if t.inflight {
			ready = !t.redeliver.After(now)
		}
		if ready {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].runAt.Before(due[j].runAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]jobs.Task, 0, len(due))
	for _, t := range due {
		t.inflight = true
		t.redeliver = now.Add(q.visibility)
		out = append(out, jobs.Task{ID: t.id, Body: append([]byte(nil), t.body...)})
	}
	return out, nil
}

// Scheduled is a decoded view of a queued task.
type Scheduled struct {
	TaskID  string
	RunAt   time.Time
	Payload jobs.Payload
}

// Pending returns every queued task ordered by run time.
func (q *MemoryQueue) Pending() []Scheduled {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Scheduled, 0, len(q.tasks))
	for _, t := range q.tasks {
		p, err := jobs.Decode(t.body)
		if err != nil {
			continue
		}
		out = append(out, Scheduled{TaskID: t.id, RunAt: t.runAt, Payload: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].Payload.Key() < out[j].Payload.Key()
		}
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}

// Kinds returns the kinds of the pending tasks in run order.
func (q *MemoryQueue) Kinds() []jobs.Kind {
	var out []jobs.Kind
	for _, s := range q.Pending() {
		out = append(out, s.Payload.Kind())
	}
	return out
}

// Put enqueues a raw body, for tests that need malformed tasks.
func (q *MemoryQueue) Put(runAt time.Time, body []byte) string {
	id, _ := q.Enqueue(context.Background(), runAt, body)
	return id
}

// MemoryJobRecords implements jobs.RecordStore.
type MemoryJobRecords struct {
	mu      sync.Mutex
	records map[uuid.UUID]jobs.Record
	failAll bool
}

func NewMemoryJobRecords() *MemoryJobRecords {
	return &MemoryJobRecords{records: make(map[uuid.UUID]jobs.Record)}
}

// Fail makes every operation fail until reset.
func (s *MemoryJobRecords) Fail(on bool) {
	s.mu.Lock()
	s.failAll = on
	s.mu.Unlock()
}

func (s *MemoryJobRecords) Insert(_ context.Context, r jobs.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return ErrQueueDown
	}
	for id, existing := range s.records {
		if existing.AppointmentID == r.AppointmentID && existing.Key == r.Key {
			delete(s.records, id)
		}
	}
	s.records[r.ID] = r
	return nil
}

func (s *MemoryJobRecords) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]jobs.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, ErrQueueDown
	}
	var out []jobs.Record
	for _, r := range s.records {
		if r.AppointmentID == appointmentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

func (s *MemoryJobRecords) DeleteByTaskID(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return ErrQueueDown
	}
	for id, r := range s.records {
		if r.TaskID == taskID {
			delete(s.records, id)
		}
	}
	return nil
}

// Len returns the number of records held.
func (s *MemoryJobRecords) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
