package ryazhenka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Events
// ============================================================================

// Engine event names. Front-ends subscribe with Engine.On and redraw from
// RecentWindow instead of polling.
const (
	EventMessageLocal     = "message.local"     // payload: Message (the new echo)
	EventMessageSent      = "message.sent"      // payload: local ref
	EventMessageConfirmed = "message.confirmed" // payload: map[localRef serverId]
	EventMessageFailed    = "message.failed"    // payload: map[localRef error]
	EventSyncComplete     = "sync.complete"     // payload: map[applied online]
	EventSyncError        = "sync.error"        // payload: status text
)

// EventHandler receives engine events.
type EventHandler func(event string, payload any)

// emitter fans events out to registered handlers. Handler panics are
// contained so a misbehaving front-end cannot take down the engine.
type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// On registers a handler for event.
func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(event, payload)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]EventHandler)
}

// ============================================================================
// Engine
// ============================================================================

const (
	// DefaultFetchInterval is the polling period between fetch ticks.
	DefaultFetchInterval = 4 * time.Second
)

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	// FetchInterval is the polling period; DefaultFetchInterval when zero.
	FetchInterval time.Duration
	// Store configures the message log.
	Store *StoreOptions
	// DeviceIDDir, when set, caches the generated device id across runs.
	DeviceIDDir string
	// Logger receives sync and conflict diagnostics; slog.Default when nil.
	Logger *slog.Logger
}

// Engine owns the Session, the MessageStore, and the UserDirectory, and
// drives reconciliation between local echoes and the server's authoritative
// record. Create one per process and hand the same instance to every
// collaborator; there is no ambient global.
type Engine struct {
	emitter

	client *Client
	store  *MessageStore
	users  *UserDirectory
	log    *slog.Logger

	fetchInterval time.Duration
	deviceDir     string

	mu       sync.Mutex
	session  *Session
	cursor   string
	epoch    uint64 // bumped on logout; results from an older epoch are discarded
	cancel   context.CancelFunc
	bg       context.Context
	fetching bool
	closed   bool
}

// NewEngine creates an engine around client. Background polling starts after
// a successful Register and stops on Logout or Close.
func NewEngine(client *Client, opts *EngineOptions) *Engine {
	e := &Engine{
		emitter:       emitter{listeners: make(map[string][]EventHandler)},
		client:        client,
		store:         NewMessageStore(nil),
		users:         NewUserDirectory(),
		log:           slog.Default(),
		fetchInterval: DefaultFetchInterval,
	}
	if opts != nil {
		if opts.FetchInterval > 0 {
			e.fetchInterval = opts.FetchInterval
		}
		if opts.Store != nil {
			e.store = NewMessageStore(opts.Store)
		}
		if opts.Logger != nil {
			e.log = opts.Logger
		}
		e.deviceDir = opts.DeviceIDDir
	}
	return e
}

// Store returns the engine's message log handle.
func (e *Engine) Store() *MessageStore { return e.store }

// Directory returns the engine's user cache handle.
func (e *Engine) Directory() *UserDirectory { return e.users }

// Session returns a read-only copy of the active session.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// ============================================================================
// Registration / session lifecycle
// ============================================================================

// Register derives the device identity, registers displayName with the
// service, and on success installs the Session and starts the fetch loop.
// On failure no session exists and the caller may retry.
func (e *Engine) Register(ctx context.Context, displayName string) error {
	if displayName == "" {
		return errors.New("display name must not be empty")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine is closed")
	}
	if e.session != nil {
		e.mu.Unlock()
		return errors.New("already registered; log out first")
	}
	e.mu.Unlock()

	deviceID := GenerateDeviceID()
	if e.deviceDir != "" {
		deviceID = LoadOrCreateDeviceID(e.deviceDir)
	}

	session, err := e.client.Register(ctx, displayName, deviceID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.session != nil {
		return errors.New("session changed during registration")
	}
	e.session = session
	e.cursor = ""
	bg, cancel := context.WithCancel(context.Background())
	e.bg = bg
	e.cancel = cancel
	go e.fetchLoop(bg, e.epoch)
	return nil
}

// Logout destroys the session and abandons in-flight fetch and send
// operations: their results are discarded, never applied to a stale session.
// The message log and user cache keep their contents.
func (e *Engine) Logout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logoutLocked()
}

func (e *Engine) logoutLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.session = nil
	e.cursor = ""
	e.epoch++
}

// Close shuts the engine down and drops all event handlers.
func (e *Engine) Close() {
	e.mu.Lock()
	e.logoutLocked()
	e.closed = true
	e.mu.Unlock()
	e.removeAll()
}

// ============================================================================
// Composition
// ============================================================================

// SubmitMessage appends text to the log as a Pending local echo and
// dispatches the send asynchronously. It returns the echo's store reference
// immediately; the eventual Sent/Confirmed/Failed transition arrives via
// events. A failed message stays visible; resubmitting composes a fresh
// echo and leaves the failed one untouched.
func (e *Engine) SubmitMessage(text string) (string, error) {
	return e.SubmitAttachment(text, "")
}

// SubmitAttachment is SubmitMessage with an opaque attachment reference
// passed through to the service untouched.
func (e *Engine) SubmitAttachment(text, attachmentRef string) (string, error) {
	if text == "" && attachmentRef == "" {
		return "", errors.New("message must not be empty")
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	session := *e.session
	epoch := e.epoch
	bg := e.bg
	e.mu.Unlock()

	echo := Message{
		LocalRef:      uuid.NewString(),
		AuthorID:      session.UserID,
		AuthorName:    session.DisplayName,
		Body:          text,
		AttachmentRef: attachmentRef,
		CreatedAt:     time.Now(),
		State:         StatePending,
		Origin:        OriginLocalEcho,
	}
	localRef := e.store.Append(echo)
	e.emit(EventMessageLocal, echo)

	go e.dispatchSend(bg, epoch, session, localRef, text, attachmentRef)
	return localRef, nil
}

// dispatchSend runs one send exchange off the caller's goroutine and applies
// the outcome under a short critical section.
func (e *Engine) dispatchSend(ctx context.Context, epoch uint64, session Session, localRef, text, attachmentRef string) {
	ack, err := e.client.Send(ctx, session, text, attachmentRef)

	e.mu.Lock()
	stale := epoch != e.epoch
	e.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		e.store.MarkFailed(localRef)
		e.log.Warn("send failed", "localRef", localRef, "status", StatusText(err), "err", err)
		e.emit(EventMessageFailed, map[string]any{"localRef": localRef, "error": StatusText(err)})
		return
	}

	e.store.MarkSent(localRef)
	e.emit(EventMessageSent, localRef)

	if retired := e.store.Confirm(localRef, ack.MessageID, ack.Timestamp); retired {
		// The fetch loop merged the server copy before the ack landed; the
		// dedup rule keeps exactly one visible entry.
		e.log.Info("echo retired by earlier merge", "localRef", localRef, "serverId", ack.MessageID)
	}
	e.emit(EventMessageConfirmed, map[string]any{"localRef": localRef, "serverId": ack.MessageID})
}

// ============================================================================
// Fetching / reconciliation
// ============================================================================

// RequestRefresh triggers an immediate fetch tick without waiting for the
// timer. Non-blocking; overlapping requests coalesce.
func (e *Engine) RequestRefresh() {
	e.mu.Lock()
	bg := e.bg
	epoch := e.epoch
	active := e.session != nil
	e.mu.Unlock()
	if !active {
		return
	}
	go e.fetchOnce(bg, epoch)
}

// RecentWindow returns up to limit of the most recent visible messages in
// creation order.
func (e *Engine) RecentWindow(limit int) []Message {
	return e.store.RecentWindow(limit)
}

func (e *Engine) fetchLoop(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(e.fetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.fetchOnce(ctx, epoch)
		}
	}
}

// fetchOnce performs one fetch exchange and merges the result. The network
// call runs unlocked; the merge is a short bounded critical section inside
// the store. Fetch failure is silent until the next tick and never clears
// previously merged state.
func (e *Engine) fetchOnce(ctx context.Context, epoch uint64) {
	e.mu.Lock()
	if e.fetching || e.session == nil || epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	e.fetching = true
	session := *e.session
	cursor := e.cursor
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.fetching = false
		e.mu.Unlock()
	}()

	msgs, online, err := e.client.Messages(ctx, session, cursor)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("fetch failed", "status", StatusText(err), "err", err)
			e.emit(EventSyncError, StatusText(err))
		}
		return
	}

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	if len(msgs) > 0 {
		e.cursor = msgs[len(msgs)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	e.mu.Unlock()

	applied := e.store.MergeRemote(msgs)

	// Sender metadata refreshes the directory opportunistically.
	now := time.Now()
	for i := range msgs {
		if msgs[i].AuthorID == "" || msgs[i].AuthorID == session.UserID {
			continue
		}
		e.users.Upsert(UserProfile{
			UserID:      msgs[i].AuthorID,
			DisplayName: msgs[i].AuthorName,
			Status:      StatusOnline,
			LastSeenAt:  now,
		})
	}

	e.emit(EventSyncComplete, map[string]any{"applied": applied, "online": online})
}

// ============================================================================
// Directory operations
// ============================================================================

// SearchUsers queries the service and folds the results into the directory.
// The empty query returns nothing without a network round trip.
func (e *Engine) SearchUsers(ctx context.Context, query string) ([]UserProfile, error) {
	if query == "" {
		return nil, nil
	}
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	session := *e.session
	e.mu.Unlock()

	profiles, err := e.client.SearchUsers(ctx, session, query)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		e.users.Upsert(p)
	}
	return profiles, nil
}

// SearchLocal consults only the local directory cache, for lookups that must
// not touch the network.
func (e *Engine) SearchLocal(query string) []UserProfile {
	return e.users.Search(query)
}

// OnlineUsers lists currently online users and refreshes the directory.
func (e *Engine) OnlineUsers(ctx context.Context) ([]UserProfile, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	session := *e.session
	e.mu.Unlock()

	profiles, err := e.client.OnlineUsers(ctx, session)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		e.users.Upsert(p)
	}
	return profiles, nil
}

// UpdateProfile sets the session user's avatar reference and bio.
func (e *Engine) UpdateProfile(ctx context.Context, avatarRef, bio string) (*UserProfile, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	session := *e.session
	e.mu.Unlock()

	p, err := e.client.UpdateProfile(ctx, session, avatarRef, bio)
	if err != nil {
		return nil, err
	}
	e.users.Upsert(*p)
	return p, nil
}

// Stats returns service-wide counters.
func (e *Engine) Stats(ctx context.Context) (*ServerStats, error) {
	return e.client.Stats(ctx)
}
