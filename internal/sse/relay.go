package sse

import (
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
)

// SessionListener returns a session.Change callback that relays changes to
// clients. Reloads are throttled.
func (b *Broker) SessionListener() func(session.Change) {
	return func(c session.Change) {
		switch c.Kind {
		case session.ChangeSwitched, session.ChangeCleared:
			b.Publish(Event{Type: EventLibrarySwitched, Data: map[string]any{
				"library_id": c.LibraryID,
				"previous":   c.Previous,
				"counts":     c.Counts,
			}})
		case session.ChangeReloaded:
			b.PublishReload(map[string]any{
				"library_id": c.LibraryID,
				"counts":     c.Counts,
			})
		case session.ChangeFailed:
			msg := ""
			if c.Err != nil {
				msg = c.Err.Error()
			}
			b.Publish(Event{Type: EventSessionFailed, Data: map[string]any{
				"library_id": c.LibraryID,
				"error":      msg,
			}})
		}
	}
}

// ServiceListener returns a tagservice.Event callback that relays mutation
// events to clients under their own type.
func (b *Broker) ServiceListener() func(tagservice.Event) {
	return func(e tagservice.Event) {
		b.Publish(Event{Type: e.Type, Data: e})
	}
}
