package ryazhenka

import (
	"time"
)

// ============================================================================
// Domain Types
// ============================================================================

// DeliveryState tracks a message through its lifecycle. A state only advances
// Pending→Sent→Confirmed or Pending→Failed, never backward.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateSent      DeliveryState = "sent"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Origin records whether a message was composed locally or fetched.
type Origin string

const (
	OriginLocalEcho Origin = "local"
	OriginRemote    Origin = "remote"
)

// PresenceStatus is a user's last known presence.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusTyping  PresenceStatus = "typing"
)

// Message is a single chat message in the local log.
//
// A local echo carries a provisional LocalRef until the server confirms it;
// ID holds the server-assigned id once Confirmed.
type Message struct {
	ID            string        `json:"id,omitempty"`
	LocalRef      string        `json:"localRef,omitempty"`
	AuthorID      string        `json:"authorId"`
	AuthorName    string        `json:"authorName"`
	Body          string        `json:"body"`
	AttachmentRef string        `json:"attachmentRef,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	ServerSeq     int64         `json:"serverSeq,omitempty"`
	State         DeliveryState `json:"state"`
	Origin        Origin        `json:"origin"`

	seq uint64 // store-local insertion sequence
}

// Confirmed reports whether the message has a server-authoritative id.
func (m *Message) Confirmed() bool { return m.State == StateConfirmed }

// UserProfile is a cached view of another chat participant.
type UserProfile struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	AvatarRef   string         `json:"avatarRef,omitempty"`
	Bio         string         `json:"bio,omitempty"`
	Status      PresenceStatus `json:"status"`
	LastSeenAt  time.Time      `json:"lastSeenAt"`
}

// Session is the identity of the running client after a successful
// registration. Exactly one Session is active per Engine; it is never shared
// outside the engine except as a value copy.
type Session struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AuthToken   string `json:"token"`
	DeviceID    string `json:"deviceId"`
}

// MessageAck is the server acknowledgement for a sent message.
type MessageAck struct {
	MessageID string
	Timestamp time.Time
}

// ServerStats mirrors GET /api/stats.
type ServerStats struct {
	TotalUsers    int     `json:"totalUsers"`
	OnlineUsers   int     `json:"onlineUsers"`
	TotalMessages int     `json:"totalMessages"`
	ServerUptime  float64 `json:"serverUptime"`
}

// ============================================================================
// Wire Types
// ============================================================================

// APIError is the structured error body the chat service returns alongside a
// non-2xx status.
type APIError struct {
	Message string `json:"error"`
}

func (e *APIError) Error() string { return e.Message }

type registerRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Console  string `json:"console"`
}

type registerResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token"`
	User    *wireUser `json:"user,omitempty"`
}

type sendRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
	Token    string `json:"token"`
}

type sendResponse struct {
	Success bool         `json:"success"`
	Message *wireMessage `json:"message,omitempty"`
}

type messagesResponse struct {
	Success     bool          `json:"success"`
	Messages    []wireMessage `json:"messages"`
	OnlineCount int           `json:"onlineCount"`
}

type searchResponse struct {
	Success bool       `json:"success"`
	Query   string     `json:"query,omitempty"`
	Results []wireUser `json:"results"`
	Count   int        `json:"count"`
}

type onlineResponse struct {
	Success bool       `json:"success"`
	Online  []wireUser `json:"online"`
	Count   int        `json:"count"`
}

type profileUpdateRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
}

type profileUpdateResponse struct {
	Success bool      `json:"success"`
	User    *wireUser `json:"user,omitempty"`
}

// wireMessage is a message as the server serializes it.
type wireMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Timestamp string `json:"timestamp"`
	IsSystem  bool   `json:"isSystem,omitempty"`
}

// toMessage converts a wire message into the domain form. Remote messages
// arrive already confirmed by the server.
func (w *wireMessage) toMessage() Message {
	return Message{
		ID:            w.ID,
		AuthorID:      w.UserID,
		AuthorName:    w.Username,
		Body:          w.Text,
		AttachmentRef: w.ImageURL,
		CreatedAt:     parseServerTime(w.Timestamp),
		ServerSeq:     parseServerSeq(w.ID),
		State:         StateConfirmed,
		Origin:        OriginRemote,
	}
}

// wireUser is a user profile as the server serializes it.
type wireUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (w *wireUser) toProfile(seenAt time.Time) UserProfile {
	status := StatusOffline
	switch PresenceStatus(w.Status) {
	case StatusOnline, StatusTyping:
		status = PresenceStatus(w.Status)
	}
	return UserProfile{
		UserID:      w.UserID,
		DisplayName: w.Username,
		AvatarRef:   w.Avatar,
		Bio:         w.Bio,
		Status:      status,
		LastSeenAt:  seenAt,
	}
}

// parseServerTime decodes the server's RFC 3339 timestamps. A malformed
// timestamp yields the zero time; ordering then falls back to server seq.
func parseServerTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseServerSeq extracts the leading numeric portion of a server message id.
// The service assigns millisecond-clock ids, so the numeric value doubles as
// the tie-breaking sequence.
func parseServerSeq(id string) int64 {
	var n int64
	for _, r := range id {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
