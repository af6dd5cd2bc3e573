package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/duelward/dueling-companion/models"
)

// Feed drains the duel_events outbox in id order. LISTEN/NOTIFY wakes
// it promptly after a commit and a poll ticker covers missed
// notifications. The cursor row only advances after the handler
// returns, so a crash mid-batch redelivers from the last consumed
// record (at-least-once).
type Feed struct {
	conn     *sql.DB
	url      string
	consumer string
	poll     time.Duration
}

const feedBatchSize = 100

func NewFeed(conn *sql.DB, databaseURL, consumer string, poll time.Duration) *Feed {
	return &Feed{conn: conn, url: databaseURL, consumer: consumer, poll: poll}
}

func (f *Feed) Run(ctx context.Context, handle func(ctx context.Context, d models.Duel) error) error {
	if _, err := f.conn.ExecContext(ctx, `
		INSERT INTO feed_offsets (consumer) VALUES ($1)
		ON CONFLICT (consumer) DO NOTHING`, f.consumer); err != nil {
		return fmt.Errorf("init feed cursor: %w", err)
	}

	listener := pq.NewListener(f.url, time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("feed listener event %d: %v", ev, err)
			}
		})
	defer listener.Close()
	if err := listener.Listen("duel_events"); err != nil {
		return fmt.Errorf("listen duel_events: %w", err)
	}

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		if err := f.drain(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient drain failures redeliver on the next wakeup.
			log.Printf("feed drain: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listener.Notify:
		case <-ticker.C:
		}
	}
}

// drain consumes outbox rows past the cursor until none remain.
func (f *Feed) drain(ctx context.Context, handle func(ctx context.Context, d models.Duel) error) error {
	for {
		var last int64
		err := f.conn.QueryRowContext(ctx,
			`SELECT last_id FROM feed_offsets WHERE consumer = $1`,
			f.consumer).Scan(&last)
		if err != nil {
			return fmt.Errorf("read feed cursor: %w", err)
		}

		events, err := f.fetch(ctx, last)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		for _, ev := range events {
			if err := handle(ctx, ev.duel); err != nil {
				return fmt.Errorf("handle event %d: %w", ev.id, err)
			}
			if _, err := f.conn.ExecContext(ctx, `
				UPDATE feed_offsets SET last_id = $2 WHERE consumer = $1`,
				f.consumer, ev.id); err != nil {
				return fmt.Errorf("advance feed cursor: %w", err)
			}
		}
	}
}

type feedEvent struct {
	id   int64
	duel models.Duel
}

func (f *Feed) fetch(ctx context.Context, after int64) ([]feedEvent, error) {
	rows, err := f.conn.QueryContext(ctx, `
		SELECT id, duel_id, owner_id, guest_id, state, expires_at
		FROM duel_events
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, after, feedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch duel events: %w", err)
	}
	defer rows.Close()

	var events []feedEvent
	for rows.Next() {
		var (
			ev    feedEvent
			state []byte
		)
		if err := rows.Scan(&ev.id, &ev.duel.ID, &ev.duel.OwnerID,
			&ev.duel.GuestID, &state, &ev.duel.ExpiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(state, &ev.duel.State); err != nil {
			return nil, fmt.Errorf("decode event %d state: %w", ev.id, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
