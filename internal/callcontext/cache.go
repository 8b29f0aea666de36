package callcontext

import "sync"

type entry struct {
	kind ConnectionKind
	call CallAttributes
}

// Cache stores one classification per participant for the session's lifetime.
// A participant's classification is write-once: later attribute changes never
// alter the cached result.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Resolve classifies the participant on first call and returns the cached
// result on every later call, regardless of the attributes passed.
func (c *Cache) Resolve(participantID string, attrs map[string]string) (ConnectionKind, CallAttributes) {
	c.mu.RLock()
	e, ok := c.entries[participantID]
	c.mu.RUnlock()
	if ok {
		return e.kind, e.call
	}

	kind, call := Classify(attrs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[participantID]; ok {
		return e.kind, e.call
	}
	c.entries[participantID] = entry{kind: kind, call: call}
	return kind, call
}

// Lookup returns the cached classification without classifying.
func (c *Cache) Lookup(participantID string) (ConnectionKind, CallAttributes, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[participantID]
	return e.kind, e.call, ok
}

// Forget removes a participant's entry once the session is over.
func (c *Cache) Forget(participantID string) {
	c.mu.Lock()
	delete(c.entries, participantID)
	c.mu.Unlock()
}
