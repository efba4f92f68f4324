package bridge

import "sync"

// messageRing keeps the ids of the most recently sent bot messages. Old
// entries are evicted in insertion order once the ring is full, which keeps
// reply-to-bot detection bounded regardless of uptime.
type messageRing struct {
	mu   sync.Mutex
	ids  []string
	set  map[string]bool
	next int
}

func newMessageRing(size int) *messageRing {
	return &messageRing{
		ids: make([]string, size),
		set: make(map[string]bool, size),
	}
}

func (r *messageRing) Add(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.ids[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ids[r.next] = id
	r.set[id] = true
	r.next = (r.next + 1) % len(r.ids)
}

func (r *messageRing) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set[id]
}

// Snapshot copies the current id set for lock-free consumption.
func (r *messageRing) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.set))
	for id := range r.set {
		out[id] = true
	}
	return out
}
