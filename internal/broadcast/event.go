package broadcast

import (
	"encoding/json"

	"github.com/smartdevs17/noc-leaderboard/internal/models"
)

// EventType is the wire name of a broadcast event
type EventType string

const (
	EventCreated EventType = "new-entry"
	EventUpdated EventType = "update-entry"
	EventDeleted EventType = "delete-entry"
)

// Event is one mutation notification. Data holds a models.Entry for created
// and updated events and the bare int64 id for deleted events.
type Event struct {
	Type EventType   `json:"event"`
	Seq  uint64      `json:"seq"`
	Data interface{} `json:"data"`
}

// Publisher is the only capability mutation code needs from the channel
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(event Event)

// Publish calls f(event)
func (f PublisherFunc) Publish(event Event) { f(event) }

// Created builds the event for a newly created entry
func Created(entry models.Entry) Event {
	return Event{Type: EventCreated, Data: entry}
}

// Updated builds the event for an updated entry
func Updated(entry models.Entry) Event {
	return Event{Type: EventUpdated, Data: entry}
}

// Deleted builds the event for a deleted entry id
func Deleted(id int64) Event {
	return Event{Type: EventDeleted, Data: id}
}

// Encode renders the event as its JSON wire frame
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// EntryID returns the id the event refers to
func (e Event) EntryID() int64 {
	switch v := e.Data.(type) {
	case models.Entry:
		return v.ID
	case *models.Entry:
		return v.ID
	case int64:
		return v
	default:
		return 0
	}
}
