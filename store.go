package ryazhenka

import (
	"sort"
	"sync"
	"time"
)

// ============================================================================
// Message Store
// ============================================================================

const (
	// DefaultRetention is the message ceiling before the oldest settled
	// entries are trimmed.
	DefaultRetention = 100
	// DefaultDedupWindow is the time tolerance when matching a local echo to
	// its server-confirmed counterpart.
	DefaultDedupWindow = 60 * time.Second
)

// StoreOptions configures a MessageStore. Zero values select the defaults.
type StoreOptions struct {
	Retention   int
	DedupWindow time.Duration
}

// MessageStore is a goroutine-safe append-ordered message log with
// deduplication and bounded retention. All mutations happen under a single
// internal lock that is never held across I/O.
type MessageStore struct {
	mu          sync.RWMutex
	entries     []*Message
	byServerID  map[string]*Message
	byLocalRef  map[string]*Message
	nextSeq     uint64
	retention   int
	dedupWindow time.Duration
}

// NewMessageStore creates an empty store.
func NewMessageStore(opts *StoreOptions) *MessageStore {
	s := &MessageStore{
		byServerID:  make(map[string]*Message),
		byLocalRef:  make(map[string]*Message),
		retention:   DefaultRetention,
		dedupWindow: DefaultDedupWindow,
	}
	if opts != nil {
		if opts.Retention > 0 {
			s.retention = opts.Retention
		}
		if opts.DedupWindow > 0 {
			s.dedupWindow = opts.DedupWindow
		}
	}
	return s
}

// Append inserts a message at the tail and assigns its insertion sequence.
// It returns the store reference for the entry: the LocalRef for local
// echoes, the server id otherwise.
func (s *MessageStore) Append(msg Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *MessageStore) appendLocked(msg Message) string {
	s.nextSeq++
	msg.seq = s.nextSeq
	m := &msg
	s.entries = append(s.entries, m)
	if m.ID != "" {
		s.byServerID[m.ID] = m
	}
	if m.LocalRef != "" {
		s.byLocalRef[m.LocalRef] = m
	}
	s.sortLocked()
	s.trimLocked()
	if m.LocalRef != "" {
		return m.LocalRef
	}
	return m.ID
}

// MarkSent advances a Pending local echo to Sent. Unknown refs and entries
// already past Sent are left untouched.
func (s *MessageStore) MarkSent(localRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.byLocalRef[localRef]; m != nil && m.State == StatePending {
		m.State = StateSent
	}
}

// Confirm transitions a local echo to Confirmed, replacing its provisional
// id with the server id and adopting the server timestamp. A missing ref is
// a no-op: the echo may already have been trimmed or merge-confirmed. The
// returned flag is true when the echo had to be retired because the server
// copy was merged first.
func (s *MessageStore) Confirm(localRef, serverID string, serverTime time.Time) (retired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmLocked(localRef, serverID, serverTime)
}

func (s *MessageStore) confirmLocked(localRef, serverID string, serverTime time.Time) bool {
	m := s.byLocalRef[localRef]
	if m == nil || (m.State != StatePending && m.State != StateSent) {
		return false
	}
	// A fetch may already have merged the server copy; keep that one and
	// retire the echo so the message stays visible exactly once.
	if existing := s.byServerID[serverID]; existing != nil && existing != m {
		s.removeLocked(m)
		return true
	}
	m.ID = serverID
	m.State = StateConfirmed
	if !serverTime.IsZero() {
		m.CreatedAt = serverTime
	}
	if m.ServerSeq == 0 {
		m.ServerSeq = parseServerSeq(serverID)
	}
	if serverID != "" {
		s.byServerID[serverID] = m
	}
	s.sortLocked()
	s.trimLocked()
	return false
}

// MarkFailed transitions a Pending or Sent local echo to Failed. The entry
// stays visible for inspection and resubmission until trimmed.
func (s *MessageStore) MarkFailed(localRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.byLocalRef[localRef]; m != nil && (m.State == StatePending || m.State == StateSent) {
		m.State = StateFailed
	}
}

// MergeRemote folds a fetched message window into the store. Per message:
// an entry with the same server id is skipped; a still-unconfirmed local
// echo matching by author, body, and the dedup time window is treated as
// confirmed by it; anything else is appended as a new Remote entry. Returns
// the number of entries added or confirmed.
func (s *MessageStore) MergeRemote(msgs []Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for i := range msgs {
		remote := msgs[i]
		if remote.ID != "" {
			if _, exists := s.byServerID[remote.ID]; exists {
				continue
			}
		}
		if echo := s.matchEchoLocked(&remote); echo != nil {
			s.confirmLocked(echo.LocalRef, remote.ID, remote.CreatedAt)
			applied++
			continue
		}
		remote.Origin = OriginRemote
		if remote.State == "" {
			remote.State = StateConfirmed
		}
		s.appendLocked(remote)
		applied++
	}
	return applied
}

// matchEchoLocked finds a Pending or Sent local echo the remote message is a
// server copy of.
func (s *MessageStore) matchEchoLocked(remote *Message) *Message {
	for _, m := range s.entries {
		if m.Origin != OriginLocalEcho {
			continue
		}
		if m.State != StatePending && m.State != StateSent {
			continue
		}
		if m.AuthorID != remote.AuthorID || m.Body != remote.Body {
			continue
		}
		delta := remote.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.dedupWindow {
			return m
		}
	}
	return nil
}

// RecentWindow returns up to limit of the most recent messages in creation
// order. The result is a snapshot; it never aliases store internals.
func (s *MessageStore) RecentWindow(limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Message, 0, limit)
	for _, m := range s.entries[n-limit:] {
		out = append(out, *m)
	}
	return out
}

// Get returns a snapshot of the entry with the given store reference.
func (s *MessageStore) Get(ref string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.byLocalRef[ref]; m != nil {
		return *m, true
	}
	if m := s.byServerID[ref]; m != nil {
		return *m, true
	}
	return Message{}, false
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// sortLocked keeps entries ordered by createdAt, ties broken by server seq,
// then by insertion sequence. Stable so equal keys keep arrival order.
func (s *MessageStore) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.ServerSeq != b.ServerSeq {
			return a.ServerSeq < b.ServerSeq
		}
		return a.seq < b.seq
	})
}

// trimLocked drops the oldest settled entries once the ceiling is exceeded.
// Pending and Sent messages are never trimmed.
func (s *MessageStore) trimLocked() {
	over := len(s.entries) - s.retention
	if over <= 0 {
		return
	}
	kept := s.entries[:0]
	for _, m := range s.entries {
		if over > 0 && (m.State == StateConfirmed || m.State == StateFailed) {
			if m.ID != "" {
				delete(s.byServerID, m.ID)
			}
			if m.LocalRef != "" {
				delete(s.byLocalRef, m.LocalRef)
			}
			over--
			continue
		}
		kept = append(kept, m)
	}
	s.entries = kept
}

// removeLocked deletes an entry outright. Only used to retire a local echo
// superseded by its merged server copy.
func (s *MessageStore) removeLocked(target *Message) {
	for i, m := range s.entries {
		if m == target {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	if target.ID != "" && s.byServerID[target.ID] == target {
		delete(s.byServerID, target.ID)
	}
	if target.LocalRef != "" {
		delete(s.byLocalRef, target.LocalRef)
	}
}
