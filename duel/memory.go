package duel

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/duelward/dueling-companion/models"
)

// Memory is an in-process backend implementing Store, Registry and
// Feed. It backs local development when no database is configured, and
// the unit tests. The feed queue lives under the same mutex as the
// duels, so its order is the commit order; nothing survives a restart,
// which matches what "redelivery after a crash" can mean for a single
// process.
type Memory struct {
	startingLife int
	ttl          time.Duration
	now          func() time.Time

	mu      sync.Mutex
	duels   map[string]models.Duel
	conns   map[string]models.Connection
	pending []models.Duel

	wake chan struct{}
}

func NewMemory(startingLife int, ttl time.Duration) *Memory {
	return &Memory{
		startingLife: startingLife,
		ttl:          ttl,
		now:          time.Now,
		duels:        make(map[string]models.Duel),
		conns:        make(map[string]models.Connection),
		wake:         make(chan struct{}, 1),
	}
}

func (m *Memory) Create(_ context.Context, duelID, ownerID string) (models.Duel, error) {
	m.mu.Lock()
	if existing, ok := m.duels[duelID]; ok {
		if existing.ExpiresAt.After(m.now()) {
			m.mu.Unlock()
			return models.Duel{}, ErrAlreadyExists
		}
		delete(m.duels, duelID) // expired, slot is free again
	}
	d := models.Duel{
		ID:        duelID,
		OwnerID:   ownerID,
		State:     models.NewDuelState(m.startingLife),
		ExpiresAt: m.now().Add(m.ttl),
	}
	m.duels[duelID] = d
	m.emitLocked(d)
	m.mu.Unlock()

	return d.Clone(), nil
}

func (m *Memory) Join(_ context.Context, duelID, guestID string) (models.Duel, error) {
	m.mu.Lock()
	d, ok := m.liveLocked(duelID)
	if !ok {
		m.mu.Unlock()
		return models.Duel{}, ErrPreconditionFailed
	}
	if d.OwnerID == "" || d.GuestID != "" {
		m.mu.Unlock()
		return models.Duel{}, ErrPreconditionFailed
	}
	d.GuestID = guestID
	m.duels[duelID] = d
	m.emitLocked(d)
	m.mu.Unlock()

	return d.Clone(), nil
}

func (m *Memory) Rejoin(_ context.Context, duelID, oldID, newID string) (models.Duel, error) {
	m.mu.Lock()
	d, ok := m.liveLocked(duelID)
	if !ok {
		m.mu.Unlock()
		return models.Duel{}, ErrNotFound
	}
	switch oldID {
	case d.OwnerID:
		d.OwnerID = newID
	case d.GuestID:
		d.GuestID = newID
	default:
		m.mu.Unlock()
		return models.Duel{}, ErrNotFound
	}
	m.duels[duelID] = d
	m.emitLocked(d)
	m.mu.Unlock()

	return d.Clone(), nil
}

func (m *Memory) Update(_ context.Context, duelID, callerID string, upd StateUpdate) (models.Duel, error) {
	if err := upd.Validate(); err != nil {
		return models.Duel{}, err
	}

	m.mu.Lock()
	d, ok := m.liveLocked(duelID)
	if !ok || !d.IsParticipant(callerID) {
		m.mu.Unlock()
		return models.Duel{}, ErrPreconditionFailed
	}
	state := d.State.Clone()
	upd.Apply(&state)
	d.State = state
	m.duels[duelID] = d
	m.emitLocked(d)
	m.mu.Unlock()

	return d.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, duelID, callerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.liveLocked(duelID)
	if !ok || d.OwnerID != callerID {
		return ErrPreconditionFailed
	}
	delete(m.duels, duelID)
	return nil
}

func (m *Memory) Get(_ context.Context, duelID string) (models.Duel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.liveLocked(duelID)
	if !ok {
		return models.Duel{}, ErrNotFound
	}
	return d.Clone(), nil
}

// liveLocked returns the duel if present and not expired. Expired rows
// are reaped on sight, mirroring lazy TTL expiry.
func (m *Memory) liveLocked(duelID string) (models.Duel, bool) {
	d, ok := m.duels[duelID]
	if !ok {
		return models.Duel{}, false
	}
	if !d.ExpiresAt.After(m.now()) {
		delete(m.duels, duelID)
		return models.Duel{}, false
	}
	return d, true
}

func (m *Memory) Register(_ context.Context, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; !ok {
		m.conns[connID] = models.Connection{ID: connID, CreatedAt: m.now()}
	}
	return nil
}

func (m *Memory) Unregister(_ context.Context, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
	return nil
}

func (m *Memory) Contains(_ context.Context, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[connID]
	return ok, nil
}

func (m *Memory) ListAll(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids, nil
}

// emitLocked appends a committed mutation to the feed queue and wakes
// the consumer. Callers hold m.mu, so queue order is commit order. The
// queue is unbounded: a slow consumer grows it but never loses a
// record; writers only pay an append under the lock.
func (m *Memory) emitLocked(d models.Duel) {
	m.pending = append(m.pending, d.Clone())
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Memory) Run(ctx context.Context, handle func(ctx context.Context, d models.Duel) error) error {
	for {
		for {
			m.mu.Lock()
			if len(m.pending) == 0 {
				m.pending = nil
				m.mu.Unlock()
				break
			}
			d := m.pending[0]
			m.pending = m.pending[1:]
			m.mu.Unlock()

			if err := handle(ctx, d); err != nil {
				log.Printf("feed handler failed for duel %s: %v", d.ID, err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		}
	}
}
