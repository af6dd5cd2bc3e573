package duel

import (
	"context"

	"github.com/duelward/dueling-companion/models"
)

// Store is the durable record of duels. Every conditional operation is a
// single compare-and-swap against the committed record: the condition is
// checked against the current value and failure leaves the record
// untouched. Losing writers get ErrPreconditionFailed and decide
// themselves whether to re-read and retry.
type Store interface {
	// Create inserts a fresh duel owned by ownerID with default state.
	// Fails with ErrAlreadyExists if duelID is taken.
	Create(ctx context.Context, duelID, ownerID string) (models.Duel, error)

	// Join claims the guest slot. Succeeds only while the owner slot is
	// occupied and the guest slot is empty.
	Join(ctx context.Context, duelID, guestID string) (models.Duel, error)

	// Rejoin swaps whichever participant slot holds oldID for newID,
	// conditioned on the slot still holding oldID at commit time.
	// ErrNotFound if neither slot holds oldID.
	Rejoin(ctx context.Context, duelID, oldID, newID string) (models.Duel, error)

	// Update applies one state variant, conditioned on callerID holding
	// a participant slot.
	Update(ctx context.Context, duelID, callerID string, upd StateUpdate) (models.Duel, error)

	// Delete removes the duel, conditioned on callerID being the owner.
	Delete(ctx context.Context, duelID, callerID string) error

	// Get returns the duel, or ErrNotFound if absent or expired.
	Get(ctx context.Context, duelID string) (models.Duel, error)
}

// Registry tracks live transport connections. All mutations are
// idempotent and immediately visible to the next ListAll.
type Registry interface {
	Register(ctx context.Context, connID string) error
	Unregister(ctx context.Context, connID string) error

	// Contains reports whether connID is currently registered. Used to
	// gate rejoin on the old connection being confirmed dead.
	Contains(ctx context.Context, connID string) (bool, error)

	// ListAll returns an unordered snapshot of registered ids. The
	// snapshot may be stale by the time the caller acts on it.
	ListAll(ctx context.Context) ([]string, error)
}

// Feed delivers every committed create/join/rejoin/update (not delete)
// to one consumer. Records for the same duel arrive in commit order;
// records may be redelivered after a consumer crash, so handlers must
// tolerate seeing the same state twice.
type Feed interface {
	// Run blocks until ctx is done, invoking handle for each record.
	// The record is only considered consumed once handle returns nil.
	Run(ctx context.Context, handle func(ctx context.Context, d models.Duel) error) error
}
