package notify

import "sync"

// Progress is a lightweight feedback event for UI observers: how many
// samples a collector flush just stored. Delivery is fire-and-forget;
// persistence never waits on it.
type Progress struct {
	SessionID      int64
	StoredPoints   int
	StoredReadings int
}

type Listener func(Progress)

// Registry fans Progress events out to registered listeners. It is scoped
// to the process lifetime and holds no persisted state; losing it loses
// nothing but UI feedback.
type Registry struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func NewRegistry() *Registry {
	return &Registry{listeners: map[int]Listener{}}
}

// Register adds a listener and returns a handle for Unregister.
func (r *Registry) Register(fn Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.listeners[r.nextID] = fn
	return r.nextID
}

// Unregister removes a listener. Unknown handles are ignored.
func (r *Registry) Unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
}

// Notify delivers the event to every listener. A nil registry is legal and
// does nothing, so collectors never need to check for observers.
func (r *Registry) Notify(event Progress) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fn := range r.listeners {
		fn(event)
	}
}
