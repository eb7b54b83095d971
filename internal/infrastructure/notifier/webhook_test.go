package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSenderPostsPayload(t *testing.T) {
	channel := "webhook"
	recipient := gofakeit.Email()
	message := gofakeit.Sentence(8)

	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, time.Second)
	require.NoError(t, sender.Send(context.Background(), channel, recipient, message))

	assert.Equal(t, channel, received.Channel)
	assert.Equal(t, recipient, received.Recipient)
	assert.Equal(t, message, received.Message)
}

func TestWebhookSenderErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, time.Second)
	err := sender.Send(context.Background(), "webhook", gofakeit.Email(), gofakeit.Sentence(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestWebhookSenderUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	sender := NewWebhookSender(server.URL, time.Second)
	err := sender.Send(context.Background(), "webhook", gofakeit.Email(), gofakeit.Sentence(5))
	assert.Error(t, err)
}
