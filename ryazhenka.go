// Package ryazhenka is the Go client for the Ryazhenka global chat service.
//
// It provides a durable per-device identity, a thread-safe local message log
// with optimistic echo, and a reconciliation engine that merges periodic
// server fetches without duplication or reordering. Delivery is pull-based
// polling only.
//
// Example:
//
//	client := ryazhenka.NewClient()
//	engine := ryazhenka.NewEngine(client, nil)
//	defer engine.Close()
//
//	if err := engine.Register(ctx, "Anna"); err != nil { ... }
//	engine.SubmitMessage("hi")
//	for _, m := range engine.RecentWindow(15) { ... }
package ryazhenka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production chat service endpoint.
	DefaultBaseURL = "https://api.ryazhenka.chat"
	// DefaultTimeout bounds every individual request. Calls are never
	// retried automatically; retry policy belongs to the caller.
	DefaultTimeout = 10 * time.Second
	// DefaultPlatform is reported at registration.
	DefaultPlatform = "Go"
)

// ============================================================================
// Client
// ============================================================================

// Client wraps all network exchanges with the chat service. TLS certificate
// verification is always on: the stock http.Client transport is used unless
// the caller substitutes their own.
type Client struct {
	baseURL    string
	platform   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different service endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPlatform overrides the platform string sent at registration.
func WithPlatform(platform string) ClientOption {
	return func(c *Client) { c.platform = platform }
}

// NewClient creates a chat service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		platform: DefaultPlatform,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// Internal request helper
// ============================================================================

// doRequest performs one JSON exchange. user-supplied text only ever travels
// through encoding/json, never through string-built payloads. Failures map
// onto the NetworkError taxonomy; the response body is returned raw.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: err}
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, &NetworkError{Kind: KindConnectionFailed, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportErr(op, err)
	}

	if resp.StatusCode >= 300 {
		ne := &NetworkError{Kind: KindServerRejected, Op: op, Status: resp.StatusCode}
		var apiErr APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			ne.API = &apiErr
		}
		return nil, ne
	}
	return data, nil
}

// decodeJSON unmarshals a response body, folding decode failures into
// MalformedResponse.
func decodeJSON[T any](op string, data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: err}
	}
	return &result, nil
}

// ============================================================================
// Endpoints
// ============================================================================

// Register creates or resumes the account bound to deviceID. On success the
// returned Session carries the auth token for all later calls; on failure no
// session exists and the caller may simply retry.
func (c *Client) Register(ctx context.Context, displayName, deviceID string) (*Session, error) {
	const op = "register"
	data, err := c.doRequest(ctx, op, http.MethodPost, "/api/register", registerRequest{
		UserID:   deviceID,
		Username: displayName,
		Console:  c.platform,
	}, nil)
	if err != nil {
		return nil, err
	}
	reg, err := decodeJSON[registerResponse](op, data)
	if err != nil {
		return nil, err
	}
	if !reg.Success || reg.Token == "" {
		return nil, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: errors.New("response carries no token")}
	}
	userID := deviceID
	displayOut := displayName
	if reg.User != nil {
		if reg.User.UserID != "" {
			userID = reg.User.UserID
		}
		if reg.User.Username != "" {
			displayOut = reg.User.Username
		}
	}
	return &Session{
		UserID:      userID,
		DisplayName: displayOut,
		AuthToken:   reg.Token,
		DeviceID:    deviceID,
	}, nil
}

// Send transmits one message and returns the server's ack: the assigned
// message id and timestamp the local echo is confirmed with. attachmentRef
// is an opaque reference passed through untouched.
func (c *Client) Send(ctx context.Context, session Session, body, attachmentRef string) (*MessageAck, error) {
	const op = "send"
	if session.AuthToken == "" {
		return nil, ErrNotAuthenticated
	}
	data, err := c.doRequest(ctx, op, http.MethodPost, "/api/send", sendRequest{
		UserID:   session.UserID,
		Username: session.DisplayName,
		Text:     body,
		ImageURL: attachmentRef,
		Token:    session.AuthToken,
	}, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[sendResponse](op, data)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Message == nil || resp.Message.ID == "" {
		return nil, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: errors.New("response carries no message id")}
	}
	return &MessageAck{
		MessageID: resp.Message.ID,
		Timestamp: parseServerTime(resp.Message.Timestamp),
	}, nil
}

// Messages fetches the message window after sinceCursor (empty for the full
// retained window). It returns the messages in server order plus the service
// online count; the caller advances its cursor from the returned slice.
func (c *Client) Messages(ctx context.Context, session Session, sinceCursor string) ([]Message, int, error) {
	const op = "fetch"
	if session.AuthToken == "" {
		return nil, 0, ErrNotAuthenticated
	}
	query := url.Values{"token": {session.AuthToken}}
	if sinceCursor != "" {
		query.Set("since", sinceCursor)
	}
	data, err := c.doRequest(ctx, op, http.MethodGet, "/api/messages", nil, query)
	if err != nil {
		return nil, 0, err
	}
	resp, err := decodeJSON[messagesResponse](op, data)
	if err != nil {
		return nil, 0, err
	}
	if !resp.Success {
		return nil, 0, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: errors.New("response not successful")}
	}
	msgs := make([]Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		msgs = append(msgs, resp.Messages[i].toMessage())
	}
	return msgs, resp.OnlineCount, nil
}

// SearchUsers queries the service for users matching query by id or display
// name. The service rejects queries shorter than two characters; that
// surfaces as a ServerRejected error.
func (c *Client) SearchUsers(ctx context.Context, session Session, query string) ([]UserProfile, error) {
	const op = "search"
	if session.AuthToken == "" {
		return nil, ErrNotAuthenticated
	}
	q := url.Values{"token": {session.AuthToken}, "q": {query}}
	data, err := c.doRequest(ctx, op, http.MethodGet, "/api/users/search", nil, q)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[searchResponse](op, data)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	profiles := make([]UserProfile, 0, len(resp.Results))
	for i := range resp.Results {
		profiles = append(profiles, resp.Results[i].toProfile(now))
	}
	return profiles, nil
}

// OnlineUsers lists the users the service currently considers online.
func (c *Client) OnlineUsers(ctx context.Context, session Session) ([]UserProfile, error) {
	const op = "online"
	if session.AuthToken == "" {
		return nil, ErrNotAuthenticated
	}
	data, err := c.doRequest(ctx, op, http.MethodGet, "/api/users/online", nil, url.Values{"token": {session.AuthToken}})
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[onlineResponse](op, data)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	profiles := make([]UserProfile, 0, len(resp.Online))
	for i := range resp.Online {
		p := resp.Online[i].toProfile(now)
		p.Status = StatusOnline
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// UpdateProfile sets the session user's avatar reference and bio. Empty
// fields are left unchanged server-side.
func (c *Client) UpdateProfile(ctx context.Context, session Session, avatarRef, bio string) (*UserProfile, error) {
	const op = "profile"
	if session.AuthToken == "" {
		return nil, ErrNotAuthenticated
	}
	data, err := c.doRequest(ctx, op, http.MethodPost, "/api/profile/update", profileUpdateRequest{
		UserID: session.UserID,
		Token:  session.AuthToken,
		Avatar: avatarRef,
		Bio:    bio,
	}, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[profileUpdateResponse](op, data)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.User == nil {
		return nil, &NetworkError{Kind: KindMalformedResponse, Op: op, Err: errors.New("response carries no user")}
	}
	p := resp.User.toProfile(time.Now())
	return &p, nil
}

// Stats returns service-wide counters. No authentication required.
func (c *Client) Stats(ctx context.Context) (*ServerStats, error) {
	const op = "stats"
	data, err := c.doRequest(ctx, op, http.MethodGet, "/api/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ServerStats](op, data)
}
