package ryazhenka

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() Session {
	return Session{
		UserID:      "RYA-test-1",
		DisplayName: "Anna",
		AuthToken:   "RYA_TOKEN_test",
		DeviceID:    "RYA-test-1",
	}
}

func TestClient_Register(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/register", r.URL.Path)

		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Anna", req.Username)
		assert.Equal(t, "RYA-test-1", req.UserID)
		assert.NotEmpty(t, req.Console)

		json.NewEncoder(w).Encode(registerResponse{
			Success: true,
			Token:   "RYA_TOKEN_abc",
			User:    &wireUser{UserID: req.UserID, Username: req.Username},
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	session, err := client.Register(context.Background(), "Anna", "RYA-test-1")
	require.NoError(t, err)
	assert.Equal(t, "RYA_TOKEN_abc", session.AuthToken)
	assert.Equal(t, "RYA-test-1", session.UserID)
	assert.Equal(t, "Anna", session.DisplayName)
	assert.Equal(t, "RYA-test-1", session.DeviceID)
}

func TestClient_RegisterServerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing userId or username"})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Register(context.Background(), "Anna", "RYA-test-1")
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindServerRejected, ne.Kind)
	assert.Equal(t, http.StatusBadRequest, ne.Status)
	require.NotNil(t, ne.API)
	assert.Equal(t, "Missing userId or username", ne.API.Message)
	assert.Equal(t, "server error", StatusText(err))
}

func TestClient_RegisterMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Register(context.Background(), "Anna", "RYA-test-1")

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindMalformedResponse, ne.Kind)
}

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/send", r.URL.Path)

		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// User text must arrive intact through structured serialization,
		// including characters that would corrupt a hand-built payload.
		assert.Equal(t, `hi "there" \ friend`, req.Text)
		assert.Equal(t, "RYA_TOKEN_test", req.Token)

		json.NewEncoder(w).Encode(sendResponse{
			Success: true,
			Message: &wireMessage{
				ID:        "1700000000001",
				UserID:    req.UserID,
				Username:  req.Username,
				Text:      req.Text,
				Timestamp: "2026-01-02T15:04:05.000Z",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	ack, err := client.Send(context.Background(), testSession(), `hi "there" \ friend`, "")
	require.NoError(t, err)
	assert.Equal(t, "1700000000001", ack.MessageID)
	assert.Equal(t, 2026, ack.Timestamp.Year())
}

func TestClient_SendWithoutSession(t *testing.T) {
	client := NewClient()
	_, err := client.Send(context.Background(), Session{}, "hi", "")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, "not logged in", StatusText(err))
}

func TestClient_SendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTimeout(30*time.Millisecond))
	_, err := client.Send(context.Background(), testSession(), "hi", "")
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindTimeout, ne.Kind)
	assert.True(t, ne.Timeout())
	assert.Equal(t, "no connection", StatusText(err))
}

func TestClient_ConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening any more

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Stats(context.Background())
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindConnectionFailed, ne.Kind)
	assert.Equal(t, "no connection", StatusText(err))
}

func TestClient_MessagesCursor(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/messages", r.URL.Path)
		require.Equal(t, "RYA_TOKEN_test", r.URL.Query().Get("token"))
		gotSince = r.URL.Query().Get("since")

		json.NewEncoder(w).Encode(messagesResponse{
			Success: true,
			Messages: []wireMessage{
				{ID: "1001", UserID: "u-bob", Username: "Boris", Text: "privet", Timestamp: "2026-01-02T15:04:05Z"},
				{ID: "1002", UserID: "u-bob", Username: "Boris", Text: "kak dela", Timestamp: "2026-01-02T15:04:06Z"},
			},
			OnlineCount: 3,
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	msgs, online, err := client.Messages(context.Background(), testSession(), "")
	require.NoError(t, err)
	assert.Empty(t, gotSince)
	assert.Equal(t, 3, online)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1001", msgs[0].ID)
	assert.Equal(t, "Boris", msgs[0].AuthorName)
	assert.Equal(t, StateConfirmed, msgs[0].State)
	assert.Equal(t, OriginRemote, msgs[0].Origin)
	assert.Equal(t, int64(1001), msgs[0].ServerSeq)

	_, _, err = client.Messages(context.Background(), testSession(), "2026-01-02T15:04:06Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T15:04:06Z", gotSince)
}

func TestClient_SearchUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/search", r.URL.Path)
		require.Equal(t, "ann", r.URL.Query().Get("q"))

		json.NewEncoder(w).Encode(searchResponse{
			Success: true,
			Results: []wireUser{{UserID: "u-anna", Username: "Anna", Status: "online"}},
			Count:   1,
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	profiles, err := client.SearchUsers(context.Background(), testSession(), "ann")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Anna", profiles[0].DisplayName)
	assert.Equal(t, StatusOnline, profiles[0].Status)
	assert.False(t, profiles[0].LastSeenAt.IsZero())
}

func TestClient_OnlineUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/online", r.URL.Path)
		json.NewEncoder(w).Encode(onlineResponse{
			Success: true,
			Online:  []wireUser{{UserID: "u-anna", Username: "Anna"}},
			Count:   1,
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	profiles, err := client.OnlineUsers(context.Background(), testSession())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, StatusOnline, profiles[0].Status)
}

func TestClient_Stats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stats", r.URL.Path)
		json.NewEncoder(w).Encode(ServerStats{TotalUsers: 7, OnlineUsers: 2, TotalMessages: 42})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalUsers)
	assert.Equal(t, 42, stats.TotalMessages)
}

func TestClient_TLSVerificationStaysOn(t *testing.T) {
	// A self-signed endpoint must be rejected by the default client; the
	// transport never disables certificate validation.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ServerStats{})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Stats(context.Background())
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindConnectionFailed, ne.Kind)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
