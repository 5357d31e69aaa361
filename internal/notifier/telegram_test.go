package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotify(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("token123", "chat42", WithTelegramBaseURL(srv.URL), WithTelegramClient(srv.Client()))
	err := tg.Notify(context.Background(), Message{Title: "BUY AAPL", Text: "10 @ 150.00"})
	require.NoError(t, err)
	assert.Equal(t, "chat42", got["chat_id"])
	assert.Equal(t, "BUY AAPL\n10 @ 150.00", got["text"])
}

func TestTelegramRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("t", "c", WithTelegramBaseURL(srv.URL), WithTelegramClient(srv.Client()),
		WithTelegramRetryDelay(time.Millisecond))
	err := tg.Notify(context.Background(), Message{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestTelegramGivesUpAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tg := NewTelegram("t", "c", WithTelegramBaseURL(srv.URL), WithTelegramClient(srv.Client()),
		WithTelegramRetryDelay(time.Millisecond))
	err := tg.Notify(context.Background(), Message{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, telegramMaxRetries, attempts)
}

func TestNoopNeverFails(t *testing.T) {
	assert.NoError(t, Noop{}.Notify(context.Background(), Message{Text: "x"}))
}
