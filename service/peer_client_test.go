package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyRewrite(t *testing.T) {
	rewrite := ProxyRewrite("https://social.example.com", "8080")

	assert.Equal(t, "http://localhost:8080/antisocial/bob/friend-webhook",
		rewrite("https://social.example.com/antisocial/bob/friend-webhook"))
	assert.Equal(t, "https://other.example.com/antisocial/bob",
		rewrite("https://other.example.com/antisocial/bob"))

	assert.Equal(t, "https://x.example.com/a", ProxyRewrite("", "8080")("https://x.example.com/a"))
}

func TestHTTPPeerClient(t *testing.T) {
	var lastForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		lastForm = map[string]string{}
		for k := range r.PostForm {
			lastForm[k] = r.PostForm.Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/antisocial/bob/friend-request":
			fmt.Fprint(w, `{"status":"ok","requestToken":"peer-token"}`)
		case "/antisocial/bob/exchange-token":
			fmt.Fprint(w, `{"status":"ok","accessToken":"acc","publicKey":"pub","name":"Bob","username":"bob","community":false}`)
		case "/antisocial/blocked/friend-request":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"status":"error","reason":"blocked","details":"endpoint is blocked"}`)
		case "/antisocial/soft/friend-webhook":
			fmt.Fprint(w, `{"status":"error","reason":"friend not found"}`)
		case "/antisocial/html/friend-webhook":
			fmt.Fprint(w, `<html></html>`)
		default:
			fmt.Fprint(w, `{"status":"ok"}`)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	client := NewHTTPPeerClient(2*time.Second, nil)
	mine := "http://local.example.com/antisocial/alice"

	t.Run("friend request", func(t *testing.T) {
		token, err := client.SendFriendRequest(ctx, srv.URL+"/antisocial/bob", mine, "my-token", "invite")
		require.NoError(t, err)
		assert.Equal(t, "peer-token", token)
		assert.Equal(t, map[string]string{"remoteEndPoint": mine, "requestToken": "my-token", "inviteToken": "invite"}, lastForm)
	})

	t.Run("exchange", func(t *testing.T) {
		res, err := client.ExchangeToken(ctx, srv.URL+"/antisocial/bob", mine, "peer-token")
		require.NoError(t, err)
		assert.Equal(t, "acc", res.AccessToken)
		assert.Equal(t, "Bob", res.Name)
		assert.Equal(t, map[string]string{"endpoint": mine, "requestToken": "peer-token"}, lastForm)
	})

	t.Run("peer reason surfaces", func(t *testing.T) {
		_, err := client.SendFriendRequest(ctx, srv.URL+"/antisocial/blocked", mine, "t", "")
		var peerErr *PeerError
		require.True(t, errors.As(err, &peerErr))
		assert.Equal(t, http.StatusForbidden, peerErr.StatusCode)
		assert.Equal(t, "blocked", peerErr.Reason)
	})

	t.Run("error status with 200", func(t *testing.T) {
		err := client.CallWebhook(ctx, srv.URL+"/antisocial/soft", "acc", ActionFriendUpdate)
		var peerErr *PeerError
		require.True(t, errors.As(err, &peerErr))
		assert.Equal(t, "friend not found", peerErr.Reason)
	})

	t.Run("unexpected body", func(t *testing.T) {
		err := client.CallWebhook(ctx, srv.URL+"/antisocial/html", "acc", ActionFriendUpdate)
		var peerErr *PeerError
		require.True(t, errors.As(err, &peerErr))
		assert.Equal(t, "unexpected body", peerErr.Reason)
	})

	t.Run("unreachable", func(t *testing.T) {
		err := client.CallWebhook(ctx, "http://127.0.0.1:1/antisocial/bob", "acc", ActionFriendDelete)
		var peerErr *PeerError
		require.True(t, errors.As(err, &peerErr))
		assert.Equal(t, "unreachable", peerErr.Reason)
	})

	t.Run("rewrite applied", func(t *testing.T) {
		rewriting := NewHTTPPeerClient(2*time.Second, func(u string) string {
			return srv.URL + u[len("https://public.example.com"):]
		})
		err := rewriting.CallWebhook(ctx, "https://public.example.com/antisocial/bob", "acc", ActionFriendAccepted)
		require.NoError(t, err)
		assert.Equal(t, ActionFriendAccepted, lastForm["action"])
	})
}
