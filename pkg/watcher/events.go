package watcher

import "solguess/pkg/models"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventStateUpdated   EventType = "state_updated"
	EventAccountChanged EventType = "account_changed"
	EventPricesUpdated  EventType = "prices_updated"
	EventCountUpdated   EventType = "count_updated"
	EventStatusUpdated  EventType = "status_updated"
	EventHistoryUpdated EventType = "history_updated"
	EventSyncFailed     EventType = "sync_failed"
)

// Event carries the state snapshot taken right after the change it reports.
// Err is set for EventSyncFailed.
type Event struct {
	Type  EventType      `json:"type"`
	State models.UIState `json:"state"`
	Err   string         `json:"error,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
