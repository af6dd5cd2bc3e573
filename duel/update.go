package duel

import (
	"fmt"

	"github.com/duelward/dueling-companion/models"
)

// StateUpdate is a tagged-variant partial update: exactly one variant
// must be set. Each variant touches only its own field group, so an
// update to one group never clears another.
type StateUpdate struct {
	Turn     *TurnUpdate      `json:"turn,omitempty"`
	Ready    *ReadyUpdate     `json:"ready,omitempty"`
	Life     *LifeUpdate      `json:"lifePoints,omitempty"`
	CardSlot *CardSlotUpdate  `json:"cardSlot,omitempty"`
	Extra    *ExtraSlotUpdate `json:"extraSlot,omitempty"`
}

// TurnUpdate replaces the active-turn marker.
type TurnUpdate struct {
	ActiveTurn string `json:"activeTurn"`
}

// ReadyUpdate sets one seat's readiness flag.
type ReadyUpdate struct {
	Seat  models.Seat `json:"seat"`
	Ready bool        `json:"ready"`
}

// LifeUpdate sets one seat's life-point counter.
type LifeUpdate struct {
	Seat   models.Seat `json:"seat"`
	Points int         `json:"points"`
}

// CardSlotUpdate writes one card slot for one seat. Slots are merged by
// key; writing slot "monster1" never disturbs "monster2".
type CardSlotUpdate struct {
	Seat models.Seat `json:"seat"`
	Slot string      `json:"slot"`
	URL  string      `json:"url"`
}

// ExtraSlotUpdate writes one of the shared extra slots.
type ExtraSlotUpdate struct {
	Slot string `json:"slot"`
	URL  string `json:"url"`
}

// Validate checks that exactly one variant is set and that it is
// internally well formed.
func (u StateUpdate) Validate() error {
	set := 0
	if u.Turn != nil {
		set++
		switch u.Turn.ActiveTurn {
		case "", string(models.SeatOwner), string(models.SeatGuest):
		default:
			return fmt.Errorf("invalid turn marker %q: %w", u.Turn.ActiveTurn, ErrInvalid)
		}
	}
	if u.Ready != nil {
		set++
		if err := validSeat(u.Ready.Seat); err != nil {
			return err
		}
	}
	if u.Life != nil {
		set++
		if err := validSeat(u.Life.Seat); err != nil {
			return err
		}
	}
	if u.CardSlot != nil {
		set++
		if err := validSeat(u.CardSlot.Seat); err != nil {
			return err
		}
		if u.CardSlot.Slot == "" {
			return fmt.Errorf("card slot name is required: %w", ErrInvalid)
		}
	}
	if u.Extra != nil {
		set++
		if u.Extra.Slot == "" {
			return fmt.Errorf("extra slot name is required: %w", ErrInvalid)
		}
	}
	if set != 1 {
		return fmt.Errorf("update must carry exactly one variant, got %d: %w", set, ErrInvalid)
	}
	return nil
}

func validSeat(s models.Seat) error {
	if s != models.SeatOwner && s != models.SeatGuest {
		return fmt.Errorf("invalid seat %q: %w", s, ErrInvalid)
	}
	return nil
}

// Apply merges the variant into state. Callers validate first.
func (u StateUpdate) Apply(s *models.DuelState) {
	switch {
	case u.Turn != nil:
		s.ActiveTurn = u.Turn.ActiveTurn
	case u.Ready != nil:
		if u.Ready.Seat == models.SeatOwner {
			s.OwnerReady = u.Ready.Ready
		} else {
			s.GuestReady = u.Ready.Ready
		}
	case u.Life != nil:
		if u.Life.Seat == models.SeatOwner {
			s.OwnerLife = u.Life.Points
		} else {
			s.GuestLife = u.Life.Points
		}
	case u.CardSlot != nil:
		if u.CardSlot.Seat == models.SeatOwner {
			if s.OwnerCards == nil {
				s.OwnerCards = map[string]string{}
			}
			s.OwnerCards[u.CardSlot.Slot] = u.CardSlot.URL
		} else {
			if s.GuestCards == nil {
				s.GuestCards = map[string]string{}
			}
			s.GuestCards[u.CardSlot.Slot] = u.CardSlot.URL
		}
	case u.Extra != nil:
		if s.ExtraSlots == nil {
			s.ExtraSlots = map[string]string{}
		}
		s.ExtraSlots[u.Extra.Slot] = u.Extra.URL
	}
}
