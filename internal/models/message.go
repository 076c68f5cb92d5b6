package models

import (
	"time"

	"github.com/samber/lo"
)

// MessageType classifies a message and drives its visibility.
type MessageType string

const (
	TypeMessage        MessageType = "message"         // visible to everyone
	TypePrivateMessage MessageType = "private_message" // visible to sender and recipient
	TypeStatus         MessageType = "status"          // join/leave notice, visible to everyone
)

// Broadcast is the recipient meaning "all participants".
const Broadcast = "Todos"

// Status notice texts.
const (
	TextJoined = "entered the room"
	TextLeft   = "left the room"
)

// timeLayout is the human-readable clock format stored on messages.
const timeLayout = "15:04:05"

// Message represents a chat message. Messages are never updated, only deleted.
type Message struct {
	ID   string      `json:"id"`
	From string      `json:"from"`
	To   string      `json:"to"`
	Text string      `json:"text"`
	Type MessageType `json:"type"`
	Time string      `json:"time"`
}

// FormatTime renders t the way message timestamps are stored.
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// StatusMessage builds a system notice about name, addressed to everyone.
func StatusMessage(name, text string, at time.Time) *Message {
	return &Message{
		From: name,
		To:   Broadcast,
		Text: text,
		Type: TypeStatus,
		Time: FormatTime(at),
	}
}

// VisibleTo reports whether user may read the message: public and status
// messages are visible to all, anything else only to its sender or recipient.
func (m Message) VisibleTo(user string) bool {
	if m.Type == TypeMessage || m.Type == TypeStatus {
		return true
	}
	return m.From == user || m.To == user
}

// FilterVisible keeps the messages visible to user, preserving order.
func FilterVisible(messages []Message, user string) []Message {
	return lo.Filter(messages, func(msg Message, _ int) bool {
		return msg.VisibleTo(user)
	})
}

// Latest returns the last limit messages in their original order.
// A non-positive limit returns all of them.
func Latest(messages []Message, limit int) []Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
