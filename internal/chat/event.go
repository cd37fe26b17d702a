package chat

import "namlong/internal/models"

type EventKind string

const (
	EventMessageCreate EventKind = "message_create"
	EventMessageUpdate EventKind = "message_update"
	EventTypingStart   EventKind = "typing_start"
	EventTypingStop    EventKind = "typing_stop"
)

// Event describes one mutation of a conversation. Message is a copy.
type Event struct {
	Kind    EventKind
	Message models.Message
}

type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// Listeners fans an event out in order.
type Listeners []Listener

func (ls Listeners) OnEvent(ev Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(ev)
		}
	}
}
