package db

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelward/dueling-companion/duel"
	"github.com/duelward/dueling-companion/models"
)

// openTestDB connects to the database named by TEST_DATABASE_URL and
// starts from clean tables. Tests are skipped when the variable is not
// set so the suite runs without a Postgres instance.
func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	conn, err := Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`TRUNCATE duels, connections, duel_events, feed_offsets`)
	require.NoError(t, err)
	return conn, url
}

func newTestStore(t *testing.T) (*Store, *Registry, string) {
	conn, url := openTestDB(t)
	return NewStore(conn, 8000, 7*24*time.Hour), NewRegistry(conn), url
}

func TestStoreCreateJoinLifecycle(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	d, err := store.Create(ctx, "d1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", d.OwnerID)
	assert.Empty(t, d.GuestID)
	assert.Equal(t, 8000, d.State.OwnerLife)
	assert.Equal(t, 8000, d.State.GuestLife)
	assert.Empty(t, d.State.OwnerCards)

	_, err = store.Create(ctx, "d1", "c2")
	assert.ErrorIs(t, err, duel.ErrAlreadyExists)

	d, err = store.Join(ctx, "d1", "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", d.GuestID)

	_, err = store.Join(ctx, "d1", "c3")
	assert.ErrorIs(t, err, duel.ErrPreconditionFailed)

	d, err = store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "c2", d.GuestID)
}

func TestStoreConcurrentJoins(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "d1", "owner")
	require.NoError(t, err)

	const joiners = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Join(ctx, "d1", string(rune('a'+i))); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStoreUpdateVariants(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "d1", "c1")
	require.NoError(t, err)
	_, err = store.Join(ctx, "d1", "c2")
	require.NoError(t, err)

	d, err := store.Update(ctx, "d1", "c1", duel.StateUpdate{
		Turn: &duel.TurnUpdate{ActiveTurn: "guest"},
	})
	require.NoError(t, err)
	assert.Equal(t, "guest", d.State.ActiveTurn)

	d, err = store.Update(ctx, "d1", "c2", duel.StateUpdate{
		Life: &duel.LifeUpdate{Seat: models.SeatOwner, Points: 4200},
	})
	require.NoError(t, err)
	assert.Equal(t, 4200, d.State.OwnerLife)
	assert.Equal(t, "guest", d.State.ActiveTurn, "turn survives a life update")

	d, err = store.Update(ctx, "d1", "c1", duel.StateUpdate{
		CardSlot: &duel.CardSlotUpdate{Seat: models.SeatOwner, Slot: "monster1", URL: "u1"},
	})
	require.NoError(t, err)
	d, err = store.Update(ctx, "d1", "c1", duel.StateUpdate{
		CardSlot: &duel.CardSlotUpdate{Seat: models.SeatOwner, Slot: "monster2", URL: "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"monster1": "u1", "monster2": "u2"}, d.State.OwnerCards)

	d, err = store.Update(ctx, "d1", "c2", duel.StateUpdate{
		Extra: &duel.ExtraSlotUpdate{Slot: "field", URL: "f"},
	})
	require.NoError(t, err)
	assert.Equal(t, "f", d.State.ExtraSlots["field"])
	assert.Equal(t, 4200, d.State.OwnerLife)

	_, err = store.Update(ctx, "d1", "stranger", duel.StateUpdate{
		Turn: &duel.TurnUpdate{ActiveTurn: "owner"},
	})
	assert.ErrorIs(t, err, duel.ErrPreconditionFailed)
}

func TestStoreRejoin(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "d1", "c1")
	require.NoError(t, err)
	_, err = store.Join(ctx, "d1", "c2")
	require.NoError(t, err)

	d, err := store.Rejoin(ctx, "d1", "c1", "c9")
	require.NoError(t, err)
	assert.Equal(t, "c9", d.OwnerID)
	assert.Equal(t, "c2", d.GuestID)

	_, err = store.Rejoin(ctx, "d1", "c1", "c10")
	assert.ErrorIs(t, err, duel.ErrNotFound)
}

func TestStoreDeleteOwnerOnly(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "d1", "c1")
	require.NoError(t, err)
	_, err = store.Join(ctx, "d1", "c2")
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, "d1", "c2"), duel.ErrPreconditionFailed)
	require.NoError(t, store.Delete(ctx, "d1", "c1"))

	_, err = store.Get(ctx, "d1")
	assert.ErrorIs(t, err, duel.ErrNotFound)
}

func TestRegistryRoundTrip(t *testing.T) {
	_, registry, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, "c1"))
	require.NoError(t, registry.Register(ctx, "c1"))
	require.NoError(t, registry.Register(ctx, "c2"))

	ok, err := registry.Contains(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	require.NoError(t, registry.Unregister(ctx, "c1"))
	require.NoError(t, registry.Unregister(ctx, "c1"))

	ids, err = registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)
}

func TestFeedDrainsOutboxInOrder(t *testing.T) {
	conn, url := openTestDB(t)
	store := NewStore(conn, 8000, 7*24*time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := store.Create(ctx, "d1", "c1")
	require.NoError(t, err)
	_, err = store.Join(ctx, "d1", "c2")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "d1", "c1"))

	feed := NewFeed(conn, url, "test-consumer", 200*time.Millisecond)

	var (
		mu   sync.Mutex
		seen []models.Duel
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = feed.Run(ctx, func(_ context.Context, d models.Duel) error {
			mu.Lock()
			seen = append(seen, d)
			if len(seen) == 2 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("feed did not drain")
	}

	// Create then join; the delete is never streamed.
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0].GuestID)
	assert.Equal(t, "c2", seen[1].GuestID)

	// The cursor advanced past both records.
	var last int64
	require.NoError(t, conn.QueryRow(
		`SELECT last_id FROM feed_offsets WHERE consumer = 'test-consumer'`).Scan(&last))
	assert.Greater(t, last, int64(0))
}
