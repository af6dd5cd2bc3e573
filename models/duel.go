package models

import "time"

// Seat identifies which participant slot of a duel a value belongs to.
type Seat string

const (
	SeatOwner Seat = "owner"
	SeatGuest Seat = "guest"
)

// Duel is the authoritative record of one two-player session.
type Duel struct {
	ID        string    `json:"duelId"`
	OwnerID   string    `json:"ownerId"`
	GuestID   string    `json:"guestId,omitempty"`
	State     DuelState `json:"state"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DuelState is the shared game state. Card maps are keyed by slot name
// and are only ever merged key by key, never replaced wholesale.
type DuelState struct {
	ActiveTurn string            `json:"activeTurn,omitempty"` // "owner", "guest" or empty
	OwnerReady bool              `json:"ownerReady"`
	GuestReady bool              `json:"guestReady"`
	OwnerLife  int               `json:"ownerLifePoints"`
	GuestLife  int               `json:"guestLifePoints"`
	OwnerCards map[string]string `json:"ownerCards"`
	GuestCards map[string]string `json:"guestCards"`
	ExtraSlots map[string]string `json:"extraSlots"`
}

// NewDuelState returns the default state a duel starts with: no active
// turn, neither player ready, both life counters at startingLife, all
// card slots empty.
func NewDuelState(startingLife int) DuelState {
	return DuelState{
		OwnerLife:  startingLife,
		GuestLife:  startingLife,
		OwnerCards: map[string]string{},
		GuestCards: map[string]string{},
		ExtraSlots: map[string]string{},
	}
}

// Clone returns a deep copy so stored state can't be mutated through a
// returned snapshot.
func (s DuelState) Clone() DuelState {
	out := s
	out.OwnerCards = cloneMap(s.OwnerCards)
	out.GuestCards = cloneMap(s.GuestCards)
	out.ExtraSlots = cloneMap(s.ExtraSlots)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone deep-copies the duel record.
func (d Duel) Clone() Duel {
	out := d
	out.State = d.State.Clone()
	return out
}

// SeatOf reports which participant slot connID occupies, if any.
func (d Duel) SeatOf(connID string) (Seat, bool) {
	switch {
	case connID != "" && connID == d.OwnerID:
		return SeatOwner, true
	case connID != "" && connID == d.GuestID:
		return SeatGuest, true
	}
	return "", false
}

// IsParticipant reports whether connID holds either participant slot.
func (d Duel) IsParticipant(connID string) bool {
	_, ok := d.SeatOf(connID)
	return ok
}
