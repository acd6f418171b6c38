package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) domain.WsServerEvent {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev domain.WsServerEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return domain.WsServerEvent{}
	}
}

func TestHubDeliversOnlyToSubscribers(t *testing.T) {
	hub := startHub(t)

	output := &Client{hub: hub, send: make(chan []byte, 4), remote: "a", log: logger.Discard()}
	actions := &Client{hub: hub, send: make(chan []byte, 4), remote: "b", log: logger.Discard()}

	hub.register <- output
	hub.register <- actions
	hub.subscribe <- &Subscription{client: output, channel: domain.WsChannelCommandOutput}
	hub.subscribe <- &Subscription{client: actions, channel: domain.WsChannelActions}

	hub.ObserveLine(domain.OutputLine{Command: "git pull", Line: "Already up to date.", Stream: domain.StreamStdout})

	ev := receive(t, output)
	assert.Equal(t, domain.WsEventCommandOutput, ev.Event)
	assert.Equal(t, "Already up to date.", ev.Payload.(map[string]any)["line"])

	hub.Publish(&domain.WsServerEvent{Channel: domain.WsChannelActions, Event: domain.WsEventActionStarted})

	ev = receive(t, actions)
	assert.Equal(t, domain.WsEventActionStarted, ev.Event)
	assert.Empty(t, output.send)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)

	slow := &Client{hub: hub, send: make(chan []byte, 1), remote: "slow", log: logger.Discard()}
	slow.send <- []byte("pending")
	hub.register <- slow
	hub.subscribe <- &Subscription{client: slow, channel: domain.WsChannelActions}

	hub.Publish(&domain.WsServerEvent{Channel: domain.WsChannelActions, Event: domain.WsEventActionStarted})

	// The hub only takes a register once handleEvent has returned.
	require.Eventually(t, func() bool { return len(hub.events) == 0 }, time.Second, time.Millisecond)
	hub.register <- &Client{hub: hub, send: make(chan []byte, 1), remote: "sync", log: logger.Discard()}

	msg, ok := <-slow.send
	require.True(t, ok)
	assert.Equal(t, "pending", string(msg))

	select {
	case _, ok := <-slow.send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(logger.Discard())

	done := make(chan struct{})
	go func() {
		for i := range eventBuffer + 10 {
			hub.Publish(&domain.WsServerEvent{Channel: domain.WsChannelActions, Event: fmt.Sprint(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked without a running hub")
	}
}

type staticAuth struct{ token string }

func (a staticAuth) ValidateBearer(req domain.InboundRequest) (*domain.AuthContext, error) {
	if req.Header.Get("Authorization") != "Bearer "+a.token {
		return nil, domain.ErrUnauthorized
	}
	return &domain.AuthContext{Method: domain.AuthBearer}, nil
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := startHub(t)
	h := NewHandler(hub, staticAuth{token: "secret"}, nil, logger.Discard())

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=secret", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(domain.WsClientMessage{Type: domain.WsSubscribe, Channel: domain.WsChannelActions}))

	// The subscription is applied asynchronously, so keep publishing
	// until the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Publish(&domain.WsServerEvent{Channel: domain.WsChannelActions, Event: domain.WsEventActionFinished})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.WsServerEvent
	require.NoError(t, conn.ReadJSON(&ev))

	assert.Equal(t, domain.WsChannelActions, ev.Channel)
	assert.Equal(t, domain.WsEventActionFinished, ev.Event)
}
