// Package events is a small synchronous publish/subscribe bus for catalog
// notifications. Listeners for one notification name run in registration
// order on the emitting goroutine.
package events

import "sync"

// Name identifies a notification.
type Name string

const (
	// StatusChange fires when an entry's install-side state changed.
	StatusChange Name = "statusChange"
	// RegistryUpdate fires when reconciliation recomputed an entry's flags.
	RegistryUpdate Name = "registryUpdate"
	// RegistryDownload fires when a full registry payload was applied. Its id is empty.
	RegistryDownload Name = "registryDownload"
)

// Listener receives the add-on id the notification refers to.
type Listener func(id string)

type subscription struct {
	id int
	fn Listener
}

// Bus holds listeners per notification name. The zero value is ready to use.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Name][]subscription
}

// Subscribe registers fn for name and returns a func that removes it.
func (b *Bus) Subscribe(name Name, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners == nil {
		b.listeners = make(map[Name][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.listeners[name]
		for i, s := range subs {
			if s.id == id {
				b.listeners[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every listener registered for name. The listener list is
// snapshotted first, so listeners may subscribe or unsubscribe freely.
func (b *Bus) Emit(name Name, id string) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.listeners[name]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(id)
	}
}
