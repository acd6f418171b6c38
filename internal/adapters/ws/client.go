package ws

import (
	"encoding/json"
	"slices"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var channels = []string{domain.WsChannelCommandOutput, domain.WsChannelActions}

type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
	log    logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, log logger.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: conn.RemoteAddr().String(),
		log:    log,
	}
}

func (c *Client) readPump() {
	defer func() {
		send(c.hub, c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("ws: client disconnected", "id", c.id, "error", err)
			}
			return
		}

		var msg domain.WsClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.log.Warn("ws: invalid json message", "error", err)
			continue
		}

		if !slices.Contains(channels, msg.Channel) {
			c.log.Warn("ws: unknown channel", "channel", msg.Channel)
			continue
		}

		switch msg.Type {
		case domain.WsSubscribe:
			send(c.hub, c.hub.subscribe, &Subscription{client: c, channel: msg.Channel})
		case domain.WsUnsubscribe:
			send(c.hub, c.hub.unsubscribe, &Subscription{client: c, channel: msg.Channel})
		default:
			c.log.Warn("ws: unknown message type", "type", msg.Type)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
