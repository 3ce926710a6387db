package models

import "time"

// Room is a gift exchange chat room. Rooms and their participants are managed
// by the event service; chat only reads them and owns the pseudonym map.
type Room struct {
	ID             string            `json:"id" db:"id"`
	Name           string            `json:"name" db:"name"`
	Participants   []string          `json:"participants"`
	AnonymousNames map[string]string `json:"anonymousNames"` // user id -> pseudonym
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}

// IsParticipant reports whether userID is a member of the room
func (r *Room) IsParticipant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
