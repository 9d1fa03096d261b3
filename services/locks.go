package services

import "sync"

// SiteLocks rejects a second update run against a website while one is in
// flight. Locks live in this process only.
type SiteLocks struct {
	mu     sync.Mutex
	active map[int64]bool
}

func NewSiteLocks() *SiteLocks {
	return &SiteLocks{active: make(map[int64]bool)}
}

// TryLock claims the website. The returned release func must be called
// once the run finishes; ok is false when a run is already active.
func (l *SiteLocks) TryLock(websiteID int64) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[websiteID] {
		return nil, false
	}
	l.active[websiteID] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, websiteID)
			l.mu.Unlock()
		})
	}, true
}

// Busy reports whether a run is active for the website.
func (l *SiteLocks) Busy(websiteID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[websiteID]
}
