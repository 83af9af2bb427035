package eventbus

import (
	"encoding/json"
	"strings"
)

// Message is the body of a request sent to an address. AccessToken is filled
// in by the client at send time.
type Message struct {
	Action      string `json:"action"`
	Params      any    `json:"params,omitempty"`
	Body        any    `json:"body,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// EventType identifies the kind of change carried by an Event.
type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
	EventFailed  EventType = "FAILED"
)

// Event is a push message delivered to a registered bus handler.
type Event struct {
	Type  EventType `json:"type"`
	Value any       `json:"value"`
}

// Handler receives events pushed to a registered address. Pushed events are
// handed over one at a time in arrival order; mock events are delivered
// synchronously from Send.
type Handler func(Event)

// EventTypeForAction infers an event type from an action name prefix:
// create* is CREATED, update* is UPDATED and delete* is DELETED. Any other
// action yields the empty type.
func EventTypeForAction(action string) EventType {
	switch {
	case strings.HasPrefix(action, "create"):
		return EventCreated
	case strings.HasPrefix(action, "update"):
		return EventUpdated
	case strings.HasPrefix(action, "delete"):
		return EventDeleted
	default:
		return ""
	}
}

// decodeEvent parses a pushed body. Bodies that are not shaped like an event
// are delivered as the Value of an untyped Event.
func decodeEvent(body json.RawMessage) Event {
	var event Event
	if err := json.Unmarshal(body, &event); err == nil && event.Type != "" {
		return event
	}

	var value any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &value)
	}
	return Event{Value: value}
}
