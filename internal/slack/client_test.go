package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BotToken:  "xoxb-test",
		BaseURL:   server.URL,
		RateLimit: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestViewsOpen_SendsTriggerAndView(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/views.open", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))

		var payload struct {
			TriggerID string `json:"trigger_id"`
			View      View   `json:"view"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "trig-1", payload.TriggerID)
		assert.Equal(t, "modal", payload.View.Type)

		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	view := &View{Type: "modal", Title: PlainText("Test")}
	assert.NoError(t, client.ViewsOpen(context.Background(), "trig-1", view))
}

func TestViewsUpdate_APIErrorIsSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "error": "not_found"}`))
	})

	err := client.ViewsUpdate(context.Background(), "V123", &View{Type: "modal"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestPostMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "U123", payload["channel"])
		assert.Equal(t, "hello", payload["text"])

		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	assert.NoError(t, client.PostMessage(context.Background(), "U123", "hello", nil))
}

func TestUserRealName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path+"?"+r.URL.RawQuery, "users.info?user=U123")
		_, _ = w.Write([]byte(`{"ok": true, "user": {"real_name": "Alice Example", "name": "alice"}}`))
	})

	assert.Equal(t, "Alice Example", client.UserRealName(context.Background(), "U123"))
}

func TestUserRealName_FallsBackToID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "error": "user_not_found"}`))
	})

	assert.Equal(t, "U999", client.UserRealName(context.Background(), "U999"))
}

func TestRespond_PostsToResponseURL(t *testing.T) {
	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BotToken: "xoxb-test", RateLimit: 1000})
	require.NoError(t, err)

	msg := &Message{ResponseType: "ephemeral", Text: "status"}
	require.NoError(t, client.Respond(context.Background(), server.URL, msg))
	assert.Equal(t, "status", received.Text)
}

func TestRespond_EmptyURL(t *testing.T) {
	client, err := NewClient(ClientConfig{BotToken: "xoxb-test"})
	require.NoError(t, err)

	assert.Error(t, client.Respond(context.Background(), "", &Message{}))
}
