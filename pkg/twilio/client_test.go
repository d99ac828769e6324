package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

func TestClient_SendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		assert.Empty(t, r.Header.Get("I-Twilio-Idempotency-Token"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "+15559990000", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", AuthToken: "secret", From: "+15559990000", BaseURL: srv.URL})

	sid, err := c.Send(context.Background(), channel.Message{Recipient: "+15550001111", Body: "hello", IdempotencyKey: "notif-1"})
	require.NoError(t, err)
	assert.Equal(t, "SM42", sid)
}

func TestClient_SendWhatsAppPrefixesAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "whatsapp:+15559990000", r.PostForm.Get("From"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM43"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", From: "+15559990000", WhatsApp: true, BaseURL: srv.URL})

	sid, err := c.Send(context.Background(), channel.Message{Recipient: "+15550001111", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "SM43", sid)
}

func TestClient_SendTruncatesLongBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Len(t, []rune(r.PostForm.Get("Body")), maxBodyLength)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM44"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSID: "AC123", From: "+15559990000", BaseURL: srv.URL})

	_, err := c.Send(context.Background(), channel.Message{Recipient: "+15550001111", Body: strings.Repeat("я", 2000)})
	require.NoError(t, err)
}

func TestClient_SendClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		want   channel.ErrorClass
	}{
		{http.StatusBadRequest, channel.ClassPermanent},
		{http.StatusNotFound, channel.ClassPermanent},
		{http.StatusTooManyRequests, channel.ClassTransient},
		{http.StatusInternalServerError, channel.ClassTransient},
		{http.StatusServiceUnavailable, channel.ClassTransient},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not valid","status":400}`))
		}))

		c := NewClient(Config{AccountSID: "AC123", From: "+15559990000", BaseURL: srv.URL})
		_, err := c.Send(context.Background(), channel.Message{Recipient: "+15550001111", Body: "x"})
		srv.Close()

		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.want, channel.Classify(err), "status %d", tc.status)
	}
}

func TestClient_ValidateRecipient(t *testing.T) {
	c := NewClient(Config{})

	assert.NoError(t, c.ValidateRecipient("+15550001111"))
	assert.NoError(t, c.ValidateRecipient("whatsapp:+15550001111"))
	assert.Error(t, c.ValidateRecipient("5550001111"))
	assert.Error(t, c.ValidateRecipient("+0123"))

	_, err := c.Send(context.Background(), channel.Message{Recipient: "nope"})
	assert.Equal(t, channel.ClassPermanent, channel.Classify(err))
}

func TestClient_SendNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{AccountSID: "AC123", From: "+15559990000", BaseURL: url})

	_, err := c.Send(context.Background(), channel.Message{Recipient: "+15550001111", Body: "x"})
	require.Error(t, err)
	assert.Equal(t, channel.ClassTransient, channel.Classify(err))
}
