package models

import "time"

// Connection is one live transport connection as known to the registry.
// The connection id doubles as the participant identifier inside duels.
type Connection struct {
	ID        string    `json:"connectionId"`
	CreatedAt time.Time `json:"createdAt"`
}
