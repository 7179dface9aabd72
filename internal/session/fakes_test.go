package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

type memDurable struct {
	mu   sync.Mutex
	rows map[string]model.Session
	err  error

	gets int
	// afterGet and afterTouch run once the row has been read, before the
	// caller sees it. They let tests interleave other operations.
	afterGet, afterTouch func()
}

func newMemDurable() *memDurable {
	return &memDurable{rows: map[string]model.Session{}}
}

func (m *memDurable) Insert(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[s.ID] = *s
	return nil
}

func (m *memDurable) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	m.gets++
	if m.err != nil {
		m.mu.Unlock()
		return nil, m.err
	}
	s, ok := m.rows[id]
	hook := m.afterGet
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if hook != nil {
		hook()
	}
	return &s, nil
}

func (m *memDurable) Touch(ctx context.Context, id string, at time.Time, expiresAt *time.Time) (*model.Session, error) {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return nil, m.err
	}
	s, ok := m.rows[id]
	if !ok || !s.IsActive || !s.ExpiresAt.After(at) {
		m.mu.Unlock()
		return nil, nil
	}
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	if expiresAt != nil {
		s.ExpiresAt = *expiresAt
	}
	m.rows[id] = s
	hook := m.afterTouch
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &s, nil
}

func (m *memDurable) Deactivate(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	s.IsActive = false
	m.rows[id] = s
	return &s, nil
}

func (m *memDurable) deactivateWhere(match func(model.Session) bool) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Session
	for id, s := range m.rows {
		if s.IsActive && match(s) {
			s.IsActive = false
			m.rows[id] = s
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memDurable) DeactivateForUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	return m.deactivateWhere(func(s model.Session) bool { return s.UserID == userID })
}

func (m *memDurable) DeactivateForTenant(ctx context.Context, tenantID uuid.UUID) ([]model.Session, error) {
	return m.deactivateWhere(func(s model.Session) bool { return s.TenantID != nil && *s.TenantID == tenantID })
}

func (m *memDurable) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for id, s := range m.rows {
		if s.ExpiresAt.Before(cutoff) || (!s.IsActive && s.LastActivityAt.Before(cutoff)) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// memFast mirrors store.SessionCache: inactive snapshots are revocation
// markers kept apart from active ones and always win on Get.
type memFast struct {
	mu         sync.Mutex
	entries    map[string]model.Session
	tombstones map[string]model.Session
	ttls       map[string]time.Duration
	err        error

	puts, putErrs int
}

func newMemFast() *memFast {
	return &memFast{
		entries:    map[string]model.Session{},
		tombstones: map[string]model.Session{},
		ttls:       map[string]time.Duration{},
	}
}

func (f *memFast) Get(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.tombstones[id]; ok {
		return &s, nil
	}
	s, ok := f.entries[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *memFast) Put(ctx context.Context, s *model.Session, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.err != nil {
		f.putErrs++
		return f.err
	}
	if !s.IsActive {
		f.tombstones[s.ID] = *s
		f.ttls[s.ID] = ttl
		return nil
	}
	if ttl <= 0 {
		delete(f.entries, s.ID)
		return nil
	}
	f.entries[s.ID] = *s
	f.ttls[s.ID] = ttl
	return nil
}

func (f *memFast) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.entries, id)
	return nil
}

func (f *memFast) entry(id string) (model.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.tombstones[id]; ok {
		return s, ok
	}
	s, ok := f.entries[id]
	return s, ok
}

func (f *memFast) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *memFast) ttl(id string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[id]
}

// inlineTasks runs submitted tasks synchronously.
type inlineTasks struct {
	mu    sync.Mutex
	names []string
}

func (d *inlineTasks) Submit(t worker.Task) error {
	d.mu.Lock()
	d.names = append(d.names, t.Name)
	d.mu.Unlock()
	return t.Run(context.Background())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
