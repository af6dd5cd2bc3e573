package duel

import (
	"context"
	"fmt"
	"log"

	"github.com/duelward/dueling-companion/media"
	"github.com/duelward/dueling-companion/models"
)

// Service wires the store, the connection registry and the media store
// into the duel operations exposed to the edge. Store errors pass
// through unchanged; the client decides whether to re-read and retry
// after a precondition failure.
type Service struct {
	store    Store
	registry Registry
	media    media.Store
}

func NewService(store Store, registry Registry, mediaStore media.Store) *Service {
	return &Service{store: store, registry: registry, media: mediaStore}
}

func (s *Service) Create(ctx context.Context, duelID, ownerID string) (models.Duel, error) {
	if duelID == "" || ownerID == "" {
		return models.Duel{}, fmt.Errorf("duel id and owner id are required: %w", ErrInvalid)
	}
	return s.store.Create(ctx, duelID, ownerID)
}

func (s *Service) Join(ctx context.Context, duelID, guestID string) (models.Duel, error) {
	if duelID == "" || guestID == "" {
		return models.Duel{}, fmt.Errorf("duel id and guest id are required: %w", ErrInvalid)
	}
	return s.store.Join(ctx, duelID, guestID)
}

// Rejoin replaces a dead participant's connection id with the caller's.
// The old id must already be gone from the registry: a participant whose
// connection is still live cannot be displaced.
func (s *Service) Rejoin(ctx context.Context, duelID, oldID, newID string) (models.Duel, error) {
	if duelID == "" || oldID == "" || newID == "" {
		return models.Duel{}, fmt.Errorf("duel id, old id and new id are required: %w", ErrInvalid)
	}
	live, err := s.registry.Contains(ctx, oldID)
	if err != nil {
		return models.Duel{}, fmt.Errorf("check old connection: %w", err)
	}
	if live {
		return models.Duel{}, fmt.Errorf("connection %s is still live: %w", oldID, ErrNotFound)
	}
	return s.store.Rejoin(ctx, duelID, oldID, newID)
}

func (s *Service) Update(ctx context.Context, duelID, callerID string, upd StateUpdate) (models.Duel, error) {
	if duelID == "" || callerID == "" {
		return models.Duel{}, fmt.Errorf("duel id and caller id are required: %w", ErrInvalid)
	}
	if err := upd.Validate(); err != nil {
		return models.Duel{}, err
	}
	return s.store.Update(ctx, duelID, callerID, upd)
}

// Delete removes the duel (owner only), then purges any card images
// stored under the duel's key prefix. The purge is best effort: an
// orphaned image is a bounded storage cost, never a correctness issue.
func (s *Service) Delete(ctx context.Context, duelID, callerID string) error {
	if duelID == "" || callerID == "" {
		return fmt.Errorf("duel id and caller id are required: %w", ErrInvalid)
	}
	if err := s.store.Delete(ctx, duelID, callerID); err != nil {
		return err
	}

	keys, err := s.media.ListByPrefix(ctx, duelID+"/")
	if err != nil {
		log.Printf("list media for deleted duel %s: %v", duelID, err)
		return nil
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.media.DeleteMany(ctx, keys); err != nil {
		log.Printf("purge media for deleted duel %s: %v", duelID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, duelID string) (models.Duel, error) {
	if duelID == "" {
		return models.Duel{}, fmt.Errorf("duel id is required: %w", ErrInvalid)
	}
	return s.store.Get(ctx, duelID)
}

// UploadCard stores a card image for the caller's own seat and commits
// the slot through the store's conditional update. The media key is
// derived from duel id, seat and slot so a delete can purge by prefix.
func (s *Service) UploadCard(ctx context.Context, duelID, callerID, slot, format string, image []byte) (models.Duel, error) {
	if slot == "" || len(image) == 0 {
		return models.Duel{}, fmt.Errorf("card slot and image are required: %w", ErrInvalid)
	}

	d, err := s.Get(ctx, duelID)
	if err != nil {
		return models.Duel{}, err
	}
	seat, ok := d.SeatOf(callerID)
	if !ok {
		return models.Duel{}, fmt.Errorf("caller %s is not a participant: %w", callerID, ErrPreconditionFailed)
	}

	key := fmt.Sprintf("%s/%s-%s.%s", duelID, seat, slot, format)
	url, err := s.media.Put(ctx, key, image)
	if err != nil {
		return models.Duel{}, fmt.Errorf("store card image: %w", err)
	}

	return s.Update(ctx, duelID, callerID, StateUpdate{
		CardSlot: &CardSlotUpdate{Seat: seat, Slot: slot, URL: url},
	})
}
