package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duelward/dueling-companion/duel"
	"github.com/duelward/dueling-companion/models"
)

// Store is the Postgres-backed session store. Each conditional
// operation is one UPDATE/INSERT whose WHERE clause carries the
// compare-and-swap condition; zero affected rows means the condition
// did not hold and nothing changed. Mutations append an outbox row in
// the same transaction so the change feed never misses a commit.
type Store struct {
	conn         *sql.DB
	startingLife int
	ttl          time.Duration
}

func NewStore(conn *sql.DB, startingLife int, ttl time.Duration) *Store {
	return &Store{conn: conn, startingLife: startingLife, ttl: ttl}
}

const duelColumns = `duel_id, owner_id, guest_id, active_turn,
	owner_ready, guest_ready, owner_life, guest_life,
	owner_cards, guest_cards, extra_slots, expires_at`

func (s *Store) Create(ctx context.Context, duelID, ownerID string) (models.Duel, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Duel{}, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	// An expired row still holding the id does not block a new duel.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM duels WHERE duel_id = $1 AND expires_at <= NOW()`, duelID); err != nil {
		return models.Duel{}, fmt.Errorf("reap expired duel: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO duels (duel_id, owner_id, owner_life, guest_life, expires_at)
		VALUES ($1, $2, $3, $3, NOW() + $4 * INTERVAL '1 second')
		ON CONFLICT (duel_id) DO NOTHING
		RETURNING `+duelColumns, duelID, ownerID, s.startingLife, int(s.ttl.Seconds()))

	d, err := scanDuel(row)
	if err == sql.ErrNoRows {
		return models.Duel{}, duel.ErrAlreadyExists
	}
	if err != nil {
		return models.Duel{}, fmt.Errorf("create duel %s: %w", duelID, err)
	}

	if err := appendEvent(ctx, tx, d); err != nil {
		return models.Duel{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Duel{}, fmt.Errorf("commit create: %w", err)
	}
	return d, nil
}

func (s *Store) Join(ctx context.Context, duelID, guestID string) (models.Duel, error) {
	return s.mutate(ctx, duel.ErrPreconditionFailed, `
		UPDATE duels SET guest_id = $2
		WHERE duel_id = $1 AND owner_id <> '' AND guest_id = ''
		  AND expires_at > NOW()
		RETURNING `+duelColumns, duelID, guestID)
}

func (s *Store) Rejoin(ctx context.Context, duelID, oldID, newID string) (models.Duel, error) {
	// Find which slot holds the old id, then swap it conditioned on the
	// slot still holding it at commit time. A racing write in between
	// surfaces as ErrPreconditionFailed; retrying is the caller's call.
	current, err := s.Get(ctx, duelID)
	if err != nil {
		return models.Duel{}, err
	}

	switch oldID {
	case current.OwnerID:
		return s.mutate(ctx, duel.ErrPreconditionFailed, `
			UPDATE duels SET owner_id = $3
			WHERE duel_id = $1 AND owner_id = $2 AND expires_at > NOW()
			RETURNING `+duelColumns, duelID, oldID, newID)
	case current.GuestID:
		return s.mutate(ctx, duel.ErrPreconditionFailed, `
			UPDATE duels SET guest_id = $3
			WHERE duel_id = $1 AND guest_id = $2 AND expires_at > NOW()
			RETURNING `+duelColumns, duelID, oldID, newID)
	default:
		return models.Duel{}, duel.ErrNotFound
	}
}

func (s *Store) Update(ctx context.Context, duelID, callerID string, upd duel.StateUpdate) (models.Duel, error) {
	if err := upd.Validate(); err != nil {
		return models.Duel{}, err
	}

	const participant = `duel_id = $1 AND (owner_id = $2 OR guest_id = $2)
		  AND expires_at > NOW()
		RETURNING ` + duelColumns

	switch {
	case upd.Turn != nil:
		return s.mutate(ctx, duel.ErrPreconditionFailed,
			`UPDATE duels SET active_turn = $3 WHERE `+participant,
			duelID, callerID, upd.Turn.ActiveTurn)
	case upd.Ready != nil:
		col := seatColumn(upd.Ready.Seat, "owner_ready", "guest_ready")
		return s.mutate(ctx, duel.ErrPreconditionFailed,
			`UPDATE duels SET `+col+` = $3 WHERE `+participant,
			duelID, callerID, upd.Ready.Ready)
	case upd.Life != nil:
		col := seatColumn(upd.Life.Seat, "owner_life", "guest_life")
		return s.mutate(ctx, duel.ErrPreconditionFailed,
			`UPDATE duels SET `+col+` = $3 WHERE `+participant,
			duelID, callerID, upd.Life.Points)
	case upd.CardSlot != nil:
		col := seatColumn(upd.CardSlot.Seat, "owner_cards", "guest_cards")
		return s.mutate(ctx, duel.ErrPreconditionFailed,
			`UPDATE duels SET `+col+` = `+col+` || jsonb_build_object($3::text, $4::text) WHERE `+participant,
			duelID, callerID, upd.CardSlot.Slot, upd.CardSlot.URL)
	case upd.Extra != nil:
		return s.mutate(ctx, duel.ErrPreconditionFailed,
			`UPDATE duels SET extra_slots = extra_slots || jsonb_build_object($3::text, $4::text) WHERE `+participant,
			duelID, callerID, upd.Extra.Slot, upd.Extra.URL)
	}
	return models.Duel{}, fmt.Errorf("empty update")
}

func (s *Store) Delete(ctx context.Context, duelID, callerID string) error {
	res, err := s.conn.ExecContext(ctx, `
		DELETE FROM duels
		WHERE duel_id = $1 AND owner_id = $2 AND expires_at > NOW()`,
		duelID, callerID)
	if err != nil {
		return fmt.Errorf("delete duel %s: %w", duelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return duel.ErrPreconditionFailed
	}
	return nil
}

func (s *Store) Get(ctx context.Context, duelID string) (models.Duel, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+duelColumns+` FROM duels
		WHERE duel_id = $1 AND expires_at > NOW()`, duelID)
	d, err := scanDuel(row)
	if err == sql.ErrNoRows {
		return models.Duel{}, duel.ErrNotFound
	}
	if err != nil {
		return models.Duel{}, fmt.Errorf("get duel %s: %w", duelID, err)
	}
	return d, nil
}

// mutate runs one conditional statement, appends the outbox row and
// commits. No row back means the condition failed; condErr names the
// error kind for that.
func (s *Store) mutate(ctx context.Context, condErr error, query string, args ...interface{}) (models.Duel, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Duel{}, fmt.Errorf("begin mutation: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDuel(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return models.Duel{}, condErr
	}
	if err != nil {
		return models.Duel{}, fmt.Errorf("mutate duel: %w", err)
	}

	if err := appendEvent(ctx, tx, d); err != nil {
		return models.Duel{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Duel{}, fmt.Errorf("commit mutation: %w", err)
	}
	return d, nil
}

// appendEvent writes the new duel image to the outbox and pokes the
// listener channel so the broadcaster wakes without waiting for a poll.
func appendEvent(ctx context.Context, tx *sql.Tx, d models.Duel) error {
	state, err := json.Marshal(d.State)
	if err != nil {
		return fmt.Errorf("marshal duel state: %w", err)
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO duel_events (duel_id, owner_id, guest_id, state, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		d.ID, d.OwnerID, d.GuestID, string(state), d.ExpiresAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("append duel event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify('duel_events', $1)`,
		fmt.Sprintf("%d", id)); err != nil {
		return fmt.Errorf("notify duel event: %w", err)
	}
	return nil
}

func seatColumn(seat models.Seat, owner, guest string) string {
	if seat == models.SeatOwner {
		return owner
	}
	return guest
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDuel(row rowScanner) (models.Duel, error) {
	var (
		d          models.Duel
		ownerCards []byte
		guestCards []byte
		extraSlots []byte
	)
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.GuestID, &d.State.ActiveTurn,
		&d.State.OwnerReady, &d.State.GuestReady,
		&d.State.OwnerLife, &d.State.GuestLife,
		&ownerCards, &guestCards, &extraSlots, &d.ExpiresAt,
	)
	if err != nil {
		return models.Duel{}, err
	}
	if err := json.Unmarshal(ownerCards, &d.State.OwnerCards); err != nil {
		return models.Duel{}, fmt.Errorf("decode owner cards: %w", err)
	}
	if err := json.Unmarshal(guestCards, &d.State.GuestCards); err != nil {
		return models.Duel{}, fmt.Errorf("decode guest cards: %w", err)
	}
	if err := json.Unmarshal(extraSlots, &d.State.ExtraSlots); err != nil {
		return models.Duel{}, fmt.Errorf("decode extra slots: %w", err)
	}
	return d, nil
}
