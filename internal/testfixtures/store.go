package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/interval"
)

// ErrInjected is returned by operations armed with FailOn.
var ErrInjected = errors.New("injected store failure")

type dayKey struct {
	user uuid.UUID
	day  string
}

type memState struct {
	appointments map[uuid.UUID]*appointment.Appointment
	days         map[dayKey]*appointment.CalendarDay
}

func (s memState) clone() memState {
	out := memState{
		appointments: make(map[uuid.UUID]*appointment.Appointment, len(s.appointments)),
		days:         make(map[dayKey]*appointment.CalendarDay, len(s.days)),
	}
	for id, a := range s.appointments {
		out.appointments[id] = CloneAppointment(a)
	}
	for k, d := range s.days {
		out.days[k] = cloneDay(d)
	}
	return out
}

// MemoryStore implements appointment.Store. Transactions run one at a time
// against a copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state memState

	failOp  string
	failNth int
	calls   map[string]int
	txCount int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			appointments: make(map[uuid.UUID]*appointment.Appointment),
			days:         make(map[dayKey]*appointment.CalendarDay),
		},
		calls: make(map[string]int),
	}
}

// FailOn makes the nth call (1-based, counted from now) to the named Tx
// method return ErrInjected.
func (s *MemoryStore) FailOn(op string, nth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOp = op
	s.failNth = nth
	s.calls = make(map[string]int)
}

// Transactions returns how many transactions committed.
func (s *MemoryStore) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// Count returns the number of stored appointments.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.appointments)
}

// Put stores a copy of a directly, bypassing the coordinator.
func (s *MemoryStore) Put(a *appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.appointments[a.ID] = CloneAppointment(a)
}

func (s *MemoryStore) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return CloneAppointment(a), nil
}

func (s *MemoryStore) GetCalendarDay(_ context.Context, userID uuid.UUID, day time.Time) (*appointment.CalendarDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.state.days[keyOf(userID, day)]
	if !ok {
		return &appointment.CalendarDay{UserID: userID, Day: day, TemporarilyReserved: []uuid.UUID{}, Booked: []uuid.UUID{}}, nil
	}
	return cloneDay(d), nil
}

func (s *MemoryStore) ActiveHostRanges(_ context.Context, hostID uuid.UUID, window interval.TimeRange) ([]interval.TimeRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeRanges(s.state, hostID, window), nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx appointment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memTx{store: s, state: work}); err != nil {
		return err
	}
	s.state = work
	s.txCount++
	return nil
}

type memTx struct {
	store *MemoryStore
	state memState
}

func (t *memTx) hit(op string) error {
	s := t.store
	if s.failOp != op {
		return nil
	}
	s.calls[op]++
	if s.calls[op] == s.failNth {
		s.failOp = ""
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (t *memTx) LockHost(context.Context, uuid.UUID) error {
	return t.hit("LockHost")
}

func (t *memTx) LockAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if err := t.hit("LockAppointment"); err != nil {
		return nil, err
	}
	a, ok := t.state.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return CloneAppointment(a), nil
}

func (t *memTx) HasActiveOverlap(_ context.Context, hostID uuid.UUID, r interval.TimeRange) (bool, error) {
	if err := t.hit("HasActiveOverlap"); err != nil {
		return false, err
	}
	return len(activeRanges(t.state, hostID, r)) > 0, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *appointment.Appointment) error {
	if err := t.hit("InsertAppointment"); err != nil {
		return err
	}
	for _, other := range t.state.appointments {
		if other.HostID == a.HostID && other.Status.Active() && other.StartTime.Equal(a.StartTime) {
			return appointment.ErrSlotUnavailable
		}
	}
	t.state.appointments[a.ID] = CloneAppointment(a)
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	if err := t.hit("UpdateAppointment"); err != nil {
		return err
	}
	if _, ok := t.state.appointments[a.ID]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	t.state.appointments[a.ID] = CloneAppointment(a)
	return nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if err := t.hit("DeleteAppointment"); err != nil {
		return err
	}
	if _, ok := t.state.appointments[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(t.state.appointments, id)
	return nil
}

func (t *memTx) AddToBucket(_ context.Context, userID uuid.UUID, day time.Time, b appointment.Bucket, id uuid.UUID) error {
	if err := t.hit("AddToBucket"); err != nil {
		return err
	}
	k := keyOf(userID, day)
	d, ok := t.state.days[k]
	if !ok {
		d = &appointment.CalendarDay{UserID: userID, Day: day, TemporarilyReserved: []uuid.UUID{}, Booked: []uuid.UUID{}}
		t.state.days[k] = d
	}
	set := bucketOf(d, b)
	for _, x := range *set {
		if x == id {
			return nil
		}
	}
	*set = append(*set, id)
	return nil
}

func (t *memTx) RemoveFromBucket(_ context.Context, userID uuid.UUID, day time.Time, b appointment.Bucket, id uuid.UUID) error {
	if err := t.hit("RemoveFromBucket"); err != nil {
		return err
	}
	k := keyOf(userID, day)
	d, ok := t.state.days[k]
	if !ok {
		return nil
	}
	set := bucketOf(d, b)
	kept := (*set)[:0]
	for _, x := range *set {
		if x != id {
			kept = append(kept, x)
		}
	}
	*set = kept
	if len(d.TemporarilyReserved) == 0 && len(d.Booked) == 0 {
		delete(t.state.days, k)
	}
	return nil
}

func bucketOf(d *appointment.CalendarDay, b appointment.Bucket) *[]uuid.UUID {
	if b == appointment.BucketBooked {
		return &d.Booked
	}
	return &d.TemporarilyReserved
}

func activeRanges(state memState, hostID uuid.UUID, window interval.TimeRange) []interval.TimeRange {
	var out []interval.TimeRange
	for _, a := range state.appointments {
		if a.HostID != hostID || !a.Status.Active() {
			continue
		}
		r := interval.TimeRange{Start: a.StartTime, End: a.EndTime}
		if interval.Overlaps(r, window) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func keyOf(user uuid.UUID, day time.Time) dayKey {
	return dayKey{user: user, day: day.Format(time.DateOnly)}
}

func cloneDay(d *appointment.CalendarDay) *appointment.CalendarDay {
	out := *d
	out.TemporarilyReserved = append([]uuid.UUID{}, d.TemporarilyReserved...)
	out.Booked = append([]uuid.UUID{}, d.Booked...)
	return &out
}

// CloneAppointment deep-copies a.
func CloneAppointment(a *appointment.Appointment) *appointment.Appointment {
	out := *a
	out.Participants = append([]appointment.Participant(nil), a.Participants...)
	if a.Payment.ExpiresAt != nil {
		t := *a.Payment.ExpiresAt
		out.Payment.ExpiresAt = &t
	}
	if a.Cancellation != nil {
		c := *a.Cancellation
		out.Cancellation = &c
	}
	return &out
}
