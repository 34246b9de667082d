package vk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("group-token", append([]Option{WithBaseURL(srv.URL), WithRateLimit(0)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(" ")
	assert.Error(t, err)
}

func TestIsMessagesFromGroupAllowed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages.isMessagesFromGroupAllowed", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("user_id"))
		assert.Equal(t, "777", r.PostForm.Get("group_id"))
		assert.Equal(t, DefaultAPIVersion, r.PostForm.Get("v"))
		assert.Equal(t, "group-token", r.PostForm.Get("access_token"))
		_, _ = w.Write([]byte(`{"response":{"is_allowed":1}}`))
	})

	ok, err := c.IsMessagesFromGroupAllowed(context.Background(), 42, 777)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsMessagesFromGroupAllowed_Denied(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"is_allowed":0}}`))
	})

	ok, err := c.IsMessagesFromGroupAllowed(context.Background(), 42, 777)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages.send", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("user_id"))
		assert.Equal(t, "1700000000000", r.PostForm.Get("random_id"))
		assert.Equal(t, "Hello", r.PostForm.Get("message"))
		assert.Equal(t, "5.131", r.PostForm.Get("v"))

		var kb Keyboard
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("keyboard")), &kb))
		assert.True(t, kb.Inline)
		require.Len(t, kb.Buttons, 1)
		assert.Equal(t, "open_link", kb.Buttons[0][0].Action.Type)
		assert.Equal(t, "https://vk.com/public777", kb.Buttons[0][0].Action.Link)

		_, _ = w.Write([]byte(`{"response":1234}`))
	}, WithAPIVersion("5.131"))

	id, err := c.SendMessage(context.Background(), Message{
		UserID:   42,
		RandomID: 1700000000000,
		Text:     "Hello",
		Keyboard: &Keyboard{Inline: true, Buttons: [][]Button{{LinkButton("Projects", "https://vk.com/public777")}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id)
}

func TestSendMessage_NoKeyboard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, has := r.PostForm["keyboard"]
		assert.False(t, has)
		_, _ = w.Write([]byte(`{"response":1}`))
	})

	_, err := c.SendMessage(context.Background(), Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
}

func TestCall_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"error_code":901,"error_msg":"Can't send messages for users without permission"}}`))
	})

	_, err := c.SendMessage(context.Background(), Message{UserID: 1, Text: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 901, apiErr.Code)
	assert.Equal(t, "vk messages.send: Can't send messages for users without permission", apiErr.Error())
	assert.False(t, resilience.IsTransient(err))
}

func TestCall_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"error":{"error_code":6,"error_msg":"Too many requests per second"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":7}`))
	}, WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	id, err := c.SendMessage(context.Background(), Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.IsMessagesFromGroupAllowed(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.True(t, resilience.IsTransient(err))
}

func TestCall_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := c.IsMessagesFromGroupAllowed(context.Background(), 1, 2)
	assert.ErrorContains(t, err, "decode response")
}

func TestAPIError_NoMessage(t *testing.T) {
	assert.Equal(t, "vk messages.send: error 5", (&APIError{Method: "messages.send", Code: 5}).Error())
}
