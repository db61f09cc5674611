package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/interval"
	"github.com/hackgods/therapy-booking/internal/notify"
	"github.com/hackgods/therapy-booking/internal/payment"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

// Locker is an in-process redisclient.Locker. Keys listed in Held report
// ErrLockNotAcquired.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

// Hold marks the slot as locked by someone else.
func (l *Locker) Hold(hostID uuid.UUID, start time.Time) {
	l.mu.Lock()
	l.held[redisclient.SlotKey(hostID, start)] = true
	l.mu.Unlock()
}

func (l *Locker) WithSlotLock(ctx context.Context, hostID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	key := redisclient.SlotKey(hostID, start)

	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// Payments records stored-method charges.
type Payments struct {
	mu      sync.Mutex
	charges []payment.ChargeRequest
	Err     error
}

func (p *Payments) ChargeStoredMethod(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return &payment.Charge{ID: fmt.Sprintf("ch_%d", len(p.charges)), Status: "succeeded", Amount: req.Amount}, nil
}

func (p *Payments) Charges() []payment.ChargeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.ChargeRequest(nil), p.charges...)
}

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	Err  error
}

func (n *Notifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *Notifier) Sent() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

// OfKind returns the recorded notifications of kind k.
func (n *Notifier) OfKind(k notify.Kind) []notify.Notification {
	var out []notify.Notification
	for _, msg := range n.Sent() {
		if msg.Kind == k {
			out = append(out, msg)
		}
	}
	return out
}

// StaticRules implements availability.Repository from fixed per-host rules.
type StaticRules struct {
	mu    sync.Mutex
	hosts map[uuid.UUID]availability.Rules
}

func NewStaticRules() *StaticRules {
	return &StaticRules{hosts: make(map[uuid.UUID]availability.Rules)}
}

func (s *StaticRules) Set(hostID uuid.UUID, rules availability.Rules) {
	s.mu.Lock()
	s.hosts[hostID] = rules
	s.mu.Unlock()
}

func (s *StaticRules) LoadSettings(_ context.Context, hostID uuid.UUID) (availability.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.hosts[hostID]
	if !ok {
		return availability.Settings{}, availability.ErrProviderNotFound
	}
	return r.Settings, nil
}

func (s *StaticRules) LoadRules(_ context.Context, hostID uuid.UUID, window interval.TimeRange) (availability.Rules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.hosts[hostID]
	if !ok {
		return availability.Rules{}, availability.ErrProviderNotFound
	}
	return availability.Rules{
		Recurring: r.Recurring,
		Overrides: r.Overrides,
		Blocked:   interval.Intersecting(r.Blocked, window),
	}, nil
}

// WeekdayHours returns rules open from start to end on each given weekday.
func WeekdayHours(start, end string, days ...time.Weekday) availability.Rules {
	from, err := availability.ParseWallClock(start)
	if err != nil {
		panic(err)
	}
	to, err := availability.ParseWallClock(end)
	if err != nil {
		panic(err)
	}
	var rules availability.Rules
	for _, d := range days {
		rules.Recurring = append(rules.Recurring, availability.RecurringRule{
			Weekday: d,
			Ranges:  []availability.DailyRange{{Start: from, End: to}},
		})
	}
	return rules
}
