package app

import (
	"sort"
	"sync"
)

// PresenceTracker 記錄每個 member 目前的連線，一個 member 只保留最後一條 (last wins)
type PresenceTracker[H comparable] struct {
	mu      sync.RWMutex
	entries map[string]H
}

// NewPresenceTracker create an empty tracker
func NewPresenceTracker[H comparable]() *PresenceTracker[H] {
	return &PresenceTracker[H]{entries: make(map[string]H)}
}

// Register set the handle of memberID, returns the handle it replaced
func (p *PresenceTracker[H]) Register(memberID string, handle H) (previous H, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, replaced = p.entries[memberID]
	if replaced && previous == handle {
		replaced = false
	}
	p.entries[memberID] = handle
	return previous, replaced
}

// Unregister remove memberID, no-op if absent
func (p *PresenceTracker[H]) Unregister(memberID string) {
	p.mu.Lock()
	delete(p.entries, memberID)
	p.mu.Unlock()
}

// UnregisterIf remove memberID only while it still points at handle
func (p *PresenceTracker[H]) UnregisterIf(memberID string, handle H) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.entries[memberID]; ok && cur == handle {
		delete(p.entries, memberID)
		return true
	}
	return false
}

// Lookup handle of memberID
func (p *PresenceTracker[H]) Lookup(memberID string) (H, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.entries[memberID]
	return h, ok
}

// ListOnline sorted member ids
func (p *PresenceTracker[H]) ListOnline() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Handles snapshot of every registered handle
func (p *PresenceTracker[H]) Handles() []H {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]H, 0, len(p.entries))
	for _, h := range p.entries {
		out = append(out, h)
	}
	return out
}

// Len number of online members
func (p *PresenceTracker[H]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
