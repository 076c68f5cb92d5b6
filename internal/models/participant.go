package models

import "time"

// Participant represents a chat user currently present in the room.
type Participant struct {
	Name       string `json:"name"`
	LastStatus int64  `json:"lastStatus"` // Unix ms of last confirmed activity
}

// NewParticipant creates a participant whose last activity is now.
func NewParticipant(name string, now time.Time) Participant {
	return Participant{Name: name, LastStatus: now.UnixMilli()}
}

// LastActivity returns the last confirmed activity as a time.
func (p Participant) LastActivity() time.Time {
	return time.UnixMilli(p.LastStatus)
}

// IdleFor returns how long the participant has been inactive at now.
func (p Participant) IdleFor(now time.Time) time.Duration {
	return now.Sub(p.LastActivity())
}
