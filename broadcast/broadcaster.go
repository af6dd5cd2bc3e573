// Package broadcast fans committed duel changes out to the transport
// connections that should see them, pruning registry entries whose
// connections turn out to be dead.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/duelward/dueling-companion/duel"
	"github.com/duelward/dueling-companion/models"
)

// ErrGone is returned by a Deliverer when the target connection no
// longer exists at the transport edge. The broadcaster recovers from it
// locally (registry prune) and never surfaces it.
var ErrGone = errors.New("connection gone")

// Deliverer pushes a payload to one connection. Any error other than
// ErrGone is a transport failure surfaced to the operator.
type Deliverer interface {
	Deliver(ctx context.Context, connID string, payload []byte) error
}

// Resolver picks the recipients for one feed record.
type Resolver func(ctx context.Context, d models.Duel) ([]string, error)

// Participants resolves to the two participant ids carried on the
// record itself.
func Participants() Resolver {
	return func(_ context.Context, d models.Duel) ([]string, error) {
		var ids []string
		if d.OwnerID != "" {
			ids = append(ids, d.OwnerID)
		}
		if d.GuestID != "" {
			ids = append(ids, d.GuestID)
		}
		return ids, nil
	}
}

// AllConnections resolves to a full registry snapshot. Legacy mode:
// every registered connection sees every change.
func AllConnections(registry duel.Registry) Resolver {
	return func(ctx context.Context, _ models.Duel) ([]string, error) {
		return registry.ListAll(ctx)
	}
}

// Broadcaster consumes the change feed and delivers each new duel
// image to its recipients.
type Broadcaster struct {
	feed     duel.Feed
	registry duel.Registry
	deliver  Deliverer
	resolve  Resolver
}

func New(feed duel.Feed, registry duel.Registry, deliverer Deliverer, resolver Resolver) *Broadcaster {
	return &Broadcaster{feed: feed, registry: registry, deliver: deliverer, resolve: resolver}
}

// Run drains the feed until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	return b.feed.Run(ctx, b.Handle)
}

type streamFrame struct {
	Action  string      `json:"action"`
	Payload models.Duel `json:"payload"`
}

// Handle fans one record out to its recipients. Deliveries run
// concurrently; one recipient's failure never blocks or cancels
// another's. A "gone" recipient is unregistered and not an error for
// the batch; any other delivery failure is reported after every
// sibling has been attempted.
func (b *Broadcaster) Handle(ctx context.Context, d models.Duel) error {
	payload, err := json.Marshal(streamFrame{Action: "stream", Payload: d})
	if err != nil {
		return fmt.Errorf("marshal stream frame: %w", err)
	}

	recipients, err := b.resolve(ctx, d)
	if err != nil {
		return fmt.Errorf("resolve recipients for duel %s: %w", d.ID, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, connID := range recipients {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			err := b.deliver.Deliver(ctx, connID, payload)
			switch {
			case err == nil:
			case errors.Is(err, ErrGone):
				log.Printf("found stale connection, deleting %s", connID)
				if err := b.registry.Unregister(ctx, connID); err != nil {
					log.Printf("unregister stale connection %s: %v", connID, err)
				}
			default:
				mu.Lock()
				errs = append(errs, fmt.Errorf("deliver to %s: %w", connID, err))
				mu.Unlock()
			}
		}(connID)
	}
	wg.Wait()

	return errors.Join(errs...)
}
