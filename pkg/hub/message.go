// Package hub fans dashboard events out to websocket clients using a single
// goroutine that owns the client set.
package hub

import (
	"encoding/json"
	"time"
)

// Message is one encoded text frame queued for clients.
type Message struct {
	Data []byte
}

// Event kinds sent on the dashboard feed.
const (
	EventSnapshot = "snapshot"
	EventTurn     = "turn"
	EventStatus   = "status"
)

// Event is the envelope of every JSON message on the feed.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Encode builds the wire message for an event.
func Encode(typ string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: typ, Time: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: b}, nil
}
