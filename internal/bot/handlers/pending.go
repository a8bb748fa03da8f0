package handlers

import "sync"

// PendingQueries tracks, per user, the single chat awaiting a free-form
// analysis question. An entry exists only between the "custom analysis"
// selection and the user's next text message (or explicit navigation away).
// Entries are independent per user key, so concurrent updates for different
// users never contend on each other's state beyond the map lock.
type PendingQueries struct {
	mu      sync.Mutex
	targets map[int64]int64 // userID -> target chatID
}

// NewPendingQueries creates an empty tracker.
func NewPendingQueries() *PendingQueries {
	return &PendingQueries{targets: make(map[int64]int64)}
}

// Set marks the user as awaiting a custom query for the given chat. Any
// previous pending target for that user is silently replaced.
func (p *PendingQueries) Set(userID, targetChatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[userID] = targetChatID
}

// Get returns the user's pending target chat, if any. The entry is kept;
// callers clear it explicitly once the query is consumed.
func (p *PendingQueries) Get(userID int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chatID, ok := p.targets[userID]
	return chatID, ok
}

// Clear removes the user's pending entry, if any.
func (p *PendingQueries) Clear(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.targets, userID)
}
