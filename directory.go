package ryazhenka

import (
	"strings"
	"sync"
)

// ============================================================================
// User Directory
// ============================================================================

// UserDirectory is a goroutine-safe cache of known user profiles, populated
// from search results and fetched sender metadata. Profiles are refreshed
// last-write-wins by LastSeenAt, never deleted.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]UserProfile
}

// NewUserDirectory creates an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{users: make(map[string]UserProfile)}
}

// Upsert inserts or refreshes a profile. A stored profile with a newer
// LastSeenAt wins over the incoming one.
func (d *UserDirectory) Upsert(p UserProfile) {
	if p.UserID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[p.UserID]; ok && existing.LastSeenAt.After(p.LastSeenAt) {
		return
	}
	d.users[p.UserID] = p
}

// FindByID returns the cached profile for id, if any.
func (d *UserDirectory) FindByID(id string) (UserProfile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.users[id]
	return p, ok
}

// Search returns all profiles whose id or display name contains query,
// case-insensitively. The empty query matches nothing. The result is an
// unordered point-in-time snapshot.
func (d *UserDirectory) Search(query string) []UserProfile {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)

	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []UserProfile
	for _, p := range d.users {
		if strings.Contains(strings.ToLower(p.UserID), q) ||
			strings.Contains(strings.ToLower(p.DisplayName), q) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of cached profiles.
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
