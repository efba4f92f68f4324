// Package interactive tracks bot-sent messages whose reactions act as
// buttons. A reaction-add on a registered message resolves to a command
// without re-deriving routing context; unregistered messages fall back to a
// small static table of emoji bindings that work on any message.
package interactive

import (
	"sync"
	"time"
)

// Record binds one bot message's reactions to command actions.
type Record struct {
	MessageID  string
	RoutingKey string
	Actions    map[string]string // reaction symbol → action name
	ExpiresAt  time.Time
}

// Registry is a process-wide map of live interactive messages. Entries are
// small and bounded by recent bot activity; expired ones are swept lazily
// on every Register rather than by a background timer.
type Registry struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Register stores the reaction→action mapping for a freshly sent message
// and opportunistically drops expired records.
func (r *Registry) Register(messageID, routingKey string, actions map[string]string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	r.records[messageID] = Record{
		MessageID:  messageID,
		RoutingKey: routingKey,
		Actions:    actions,
		ExpiresAt:  r.now().Add(ttl),
	}
}

// Lookup returns the record for a message, or false if the message is not
// tracked or has expired.
func (r *Registry) Lookup(messageID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[messageID]
	if !ok {
		return Record{}, false
	}
	if r.now().After(rec.ExpiresAt) {
		delete(r.records, messageID)
		return Record{}, false
	}
	return rec, true
}

// Resolve maps a reaction symbol on a tracked message to its action name.
func (r *Registry) Resolve(messageID, symbol string) (action, routingKey string, ok bool) {
	rec, found := r.Lookup(messageID)
	if !found {
		return "", "", false
	}
	action, ok = rec.Actions[symbol]
	return action, rec.RoutingKey, ok
}

// SweepExpired removes all expired records.
func (r *Registry) SweepExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
}

// Len reports the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Registry) sweepLocked() {
	now := r.now()
	for id, rec := range r.records {
		if now.After(rec.ExpiresAt) {
			delete(r.records, id)
		}
	}
}

// GlobalActions is the static fallback table of emoji→command bindings
// usable on any message, not just registered ones. The caller re-derives
// the routing key from the reacting user and the message's conversation.
var GlobalActions = map[string]string{
	"🔄": "retry",
	"📌": "remember",
	"🗑️": "forget",
}

// GlobalAction resolves a reaction symbol against the static table.
func GlobalAction(symbol string) (string, bool) {
	action, ok := GlobalActions[symbol]
	return action, ok
}
