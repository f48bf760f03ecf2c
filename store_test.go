package ryazhenka

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteMsg(id, author, body string, at time.Time) Message {
	return Message{
		ID:         id,
		AuthorID:   author,
		AuthorName: author,
		Body:       body,
		CreatedAt:  at,
		ServerSeq:  parseServerSeq(id),
		State:      StateConfirmed,
		Origin:     OriginRemote,
	}
}

func echoMsg(ref, author, body string, at time.Time) Message {
	return Message{
		LocalRef:   ref,
		AuthorID:   author,
		AuthorName: author,
		Body:       body,
		CreatedAt:  at,
		State:      StatePending,
		Origin:     OriginLocalEcho,
	}
}

func TestMessageStore_MergeRemoteIdempotent(t *testing.T) {
	s := NewMessageStore(nil)
	now := time.Now()

	batch := []Message{
		remoteMsg("100", "bob", "hello", now),
		remoteMsg("101", "bob", "again", now.Add(time.Second)),
	}

	require.Equal(t, 2, s.MergeRemote(batch))
	require.Equal(t, 0, s.MergeRemote(batch), "second merge of the same payload must be a no-op")
	assert.Equal(t, 2, s.Len())

	window := s.RecentWindow(10)
	require.Len(t, window, 2)
	assert.Equal(t, "100", window[0].ID)
	assert.Equal(t, "101", window[1].ID)
}

func TestMessageStore_EchoDedupOnMerge(t *testing.T) {
	s := NewMessageStore(nil)
	now := time.Now()

	s.Append(echoMsg("ref-1", "anna", "hi", now))

	// Server echo of the same (author, body) within the dedup window.
	applied := s.MergeRemote([]Message{remoteMsg("s1", "anna", "hi", now.Add(2*time.Second))})
	require.Equal(t, 1, applied)

	window := s.RecentWindow(10)
	require.Len(t, window, 1, "echo and server copy must collapse into one entry")
	assert.Equal(t, "s1", window[0].ID)
	assert.Equal(t, StateConfirmed, window[0].State)
}

func TestMessageStore_EchoOutsideWindowIsNewEntry(t *testing.T) {
	s := NewMessageStore(&StoreOptions{DedupWindow: 5 * time.Second})
	now := time.Now()

	s.Append(echoMsg("ref-1", "anna", "hi", now))
	s.MergeRemote([]Message{remoteMsg("s1", "anna", "hi", now.Add(time.Minute))})

	assert.Equal(t, 2, s.Len(), "a match outside the time window is a distinct message")
}

func TestMessageStore_RecentWindowOrdering(t *testing.T) {
	s := NewMessageStore(nil)
	base := time.Now()

	// Merge out of order, across several batches.
	s.MergeRemote([]Message{
		remoteMsg("300", "bob", "third", base.Add(3*time.Second)),
		remoteMsg("100", "bob", "first", base.Add(1*time.Second)),
	})
	s.MergeRemote([]Message{
		remoteMsg("200", "eve", "second", base.Add(2*time.Second)),
	})

	window := s.RecentWindow(10)
	require.Len(t, window, 3)
	for i := 1; i < len(window); i++ {
		assert.False(t, window[i].CreatedAt.Before(window[i-1].CreatedAt),
			"createdAt must be non-decreasing at index %d", i)
	}
}

func TestMessageStore_TimestampTiesBreakByServerSeq(t *testing.T) {
	s := NewMessageStore(nil)
	at := time.Now()

	s.MergeRemote([]Message{
		remoteMsg("12", "bob", "b", at),
		remoteMsg("11", "bob", "a", at),
	})

	window := s.RecentWindow(10)
	require.Len(t, window, 2)
	assert.Equal(t, "11", window[0].ID)
	assert.Equal(t, "12", window[1].ID)
}

func TestMessageStore_RetentionNeverDropsPending(t *testing.T) {
	s := NewMessageStore(&StoreOptions{Retention: 5})
	base := time.Now()

	s.Append(echoMsg("pending-ref", "anna", "unsent", base))

	for i := 0; i < 20; i++ {
		s.MergeRemote([]Message{
			remoteMsg(fmt.Sprintf("%d", 100+i), "bob", "filler", base.Add(time.Duration(i+1)*time.Second)),
		})
	}

	assert.LessOrEqual(t, s.Len(), 5)
	got, ok := s.Get("pending-ref")
	require.True(t, ok, "pending message must survive retention trimming")
	assert.Equal(t, StatePending, got.State)

	// What was dropped is the oldest confirmed entries.
	_, ok = s.Get("100")
	assert.False(t, ok)
}

func TestMessageStore_ConfirmMissingRefIsNoop(t *testing.T) {
	s := NewMessageStore(nil)
	s.Confirm("no-such-ref", "s1", time.Now())
	assert.Equal(t, 0, s.Len())
}

func TestMessageStore_ConfirmAdoptsServerIdentity(t *testing.T) {
	s := NewMessageStore(nil)
	now := time.Now()
	serverTime := now.Add(500 * time.Millisecond)

	s.Append(echoMsg("ref-1", "anna", "hi", now))
	retired := s.Confirm("ref-1", "s1", serverTime)
	assert.False(t, retired)

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, got.State)
	assert.True(t, got.CreatedAt.Equal(serverTime))

	// The local ref still resolves to the same entry.
	byRef, ok := s.Get("ref-1")
	require.True(t, ok)
	assert.Equal(t, "s1", byRef.ID)
}

func TestMessageStore_ConfirmAfterMergeRetiresEcho(t *testing.T) {
	s := NewMessageStore(&StoreOptions{DedupWindow: time.Millisecond})
	now := time.Now()

	// The dedup window is tiny, so the merge lands as a separate entry
	// rather than matching the echo. A late ack for the same server id must
	// not leave two visible copies.
	s.Append(echoMsg("ref-1", "anna", "hi", now))
	s.MergeRemote([]Message{remoteMsg("s1", "anna", "hi", now.Add(time.Hour))})
	require.Equal(t, 2, s.Len())

	retired := s.Confirm("ref-1", "s1", now.Add(time.Hour))
	assert.True(t, retired)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, got.State)
}

func TestMessageStore_StateNeverRegresses(t *testing.T) {
	s := NewMessageStore(nil)
	now := time.Now()

	s.Append(echoMsg("ref-1", "anna", "hi", now))
	s.Confirm("ref-1", "s1", now)

	// Late failure report must not pull a confirmed message backward.
	s.MarkFailed("ref-1")
	got, _ := s.Get("s1")
	assert.Equal(t, StateConfirmed, got.State)

	// Nor can a confirmed message go back to sent.
	s.MarkSent("ref-1")
	got, _ = s.Get("s1")
	assert.Equal(t, StateConfirmed, got.State)
}

func TestMessageStore_MarkFailedKeepsMessageVisible(t *testing.T) {
	s := NewMessageStore(nil)
	now := time.Now()

	s.Append(echoMsg("ref-1", "anna", "hi", now))
	s.MarkFailed("ref-1")

	window := s.RecentWindow(10)
	require.Len(t, window, 1)
	assert.Equal(t, StateFailed, window[0].State)
}

func TestMessageStore_RecentWindowLimit(t *testing.T) {
	s := NewMessageStore(nil)
	base := time.Now()
	for i := 0; i < 10; i++ {
		s.MergeRemote([]Message{
			remoteMsg(fmt.Sprintf("%d", 100+i), "bob", "m", base.Add(time.Duration(i)*time.Second)),
		})
	}

	window := s.RecentWindow(3)
	require.Len(t, window, 3)
	assert.Equal(t, "107", window[0].ID)
	assert.Equal(t, "109", window[2].ID)
}

func TestMessageStore_ConcurrentAppendAndRead(t *testing.T) {
	s := NewMessageStore(&StoreOptions{Retention: 1000})
	base := time.Now()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.MergeRemote([]Message{
				remoteMsg(fmt.Sprintf("%d", 1000+i), "bob", "m", base.Add(time.Duration(i)*time.Millisecond)),
			})
		}
	}()
	for i := 0; i < 200; i++ {
		s.RecentWindow(50)
		s.Len()
	}
	<-done

	assert.Equal(t, 200, s.Len())
}
