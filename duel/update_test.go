package duel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelward/dueling-companion/models"
)

func TestStateUpdateValidate(t *testing.T) {
	tests := []struct {
		name    string
		upd     StateUpdate
		wantErr bool
	}{
		{
			name: "turn",
			upd:  StateUpdate{Turn: &TurnUpdate{ActiveTurn: "owner"}},
		},
		{
			name: "clear turn",
			upd:  StateUpdate{Turn: &TurnUpdate{}},
		},
		{
			name:    "bad turn marker",
			upd:     StateUpdate{Turn: &TurnUpdate{ActiveTurn: "spectator"}},
			wantErr: true,
		},
		{
			name: "ready",
			upd:  StateUpdate{Ready: &ReadyUpdate{Seat: models.SeatGuest, Ready: true}},
		},
		{
			name:    "ready without seat",
			upd:     StateUpdate{Ready: &ReadyUpdate{Ready: true}},
			wantErr: true,
		},
		{
			name:    "no variant",
			upd:     StateUpdate{},
			wantErr: true,
		},
		{
			name: "two variants",
			upd: StateUpdate{
				Turn: &TurnUpdate{ActiveTurn: "owner"},
				Life: &LifeUpdate{Seat: models.SeatOwner, Points: 100},
			},
			wantErr: true,
		},
		{
			name:    "card slot without name",
			upd:     StateUpdate{CardSlot: &CardSlotUpdate{Seat: models.SeatOwner}},
			wantErr: true,
		},
		{
			name:    "extra slot without name",
			upd:     StateUpdate{Extra: &ExtraSlotUpdate{URL: "u"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.upd.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateUpdateApplyTouchesOnlyItsGroup(t *testing.T) {
	state := models.NewDuelState(8000)
	state.OwnerCards["monster1"] = "url-a"
	state.GuestReady = true

	upd := StateUpdate{Life: &LifeUpdate{Seat: models.SeatOwner, Points: 3000}}
	require.NoError(t, upd.Validate())

	upd.Apply(&state)

	assert.Equal(t, 3000, state.OwnerLife)
	assert.Equal(t, 8000, state.GuestLife)
	assert.Equal(t, "url-a", state.OwnerCards["monster1"], "card slots must survive a life update")
	assert.True(t, state.GuestReady, "ready flags must survive a life update")

	// Applying the same update again is a no-op.
	before := state.Clone()
	upd.Apply(&state)
	assert.Equal(t, before, state)
}

func TestStateUpdateApplyMergesCardSlotsByKey(t *testing.T) {
	state := models.NewDuelState(8000)

	first := StateUpdate{CardSlot: &CardSlotUpdate{Seat: models.SeatGuest, Slot: "monster1", URL: "u1"}}
	second := StateUpdate{CardSlot: &CardSlotUpdate{Seat: models.SeatGuest, Slot: "monster2", URL: "u2"}}
	first.Apply(&state)
	second.Apply(&state)

	assert.Equal(t, map[string]string{"monster1": "u1", "monster2": "u2"}, state.GuestCards)
	assert.Empty(t, state.OwnerCards)

	// Overwriting one slot leaves the other alone.
	overwrite := StateUpdate{CardSlot: &CardSlotUpdate{Seat: models.SeatGuest, Slot: "monster1", URL: "u3"}}
	overwrite.Apply(&state)
	assert.Equal(t, map[string]string{"monster1": "u3", "monster2": "u2"}, state.GuestCards)
}

func TestStateUpdateApplyExtraSlots(t *testing.T) {
	state := models.NewDuelState(8000)

	upd := StateUpdate{Extra: &ExtraSlotUpdate{Slot: "field", URL: "u"}}
	upd.Apply(&state)

	assert.Equal(t, "u", state.ExtraSlots["field"])
	assert.Empty(t, state.OwnerCards)
	assert.Empty(t, state.GuestCards)
}
