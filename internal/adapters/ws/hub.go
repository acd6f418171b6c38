// Package ws streams deploy activity to subscribed websocket clients.
package ws

import (
	"context"
	"encoding/json"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const eventBuffer = 256

type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *Subscription
	unsubscribe chan *Subscription

	events chan *domain.WsServerEvent
	done   chan struct{}

	log logger.Logger
}

type Subscription struct {
	client  *Client
	channel string
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		channels: make(map[string]map[*Client]bool),

		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *Subscription),
		unsubscribe: make(chan *Subscription),

		events: make(chan *domain.WsServerEvent, eventBuffer),
		done:   make(chan struct{}),

		log: log,
	}
}

// Run owns all hub state until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return nil

		case client := <-h.register:
			h.clients[client] = true
			h.log.Info("ws: client registered", "id", client.id, "remote", client.remote, "total_clients", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.log.Info("ws: client unregistered", "id", client.id, "remote", client.remote, "total_clients", len(h.clients))
			}

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			if h.channels[sub.channel] == nil {
				h.channels[sub.channel] = make(map[*Client]bool)
			}
			h.channels[sub.channel][sub.client] = true
			h.log.Debug("ws: client subscribed", "id", sub.client.id, "channel", sub.channel)

		case sub := <-h.unsubscribe:
			if subs, ok := h.channels[sub.channel]; ok {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.channels, sub.channel)
				}
				h.log.Debug("ws: client unsubscribed", "id", sub.client.id, "channel", sub.channel)
			}

		case event := <-h.events:
			h.handleEvent(event)
		}
	}
}

func (h *Hub) handleEvent(event *domain.WsServerEvent) {
	subs, ok := h.channels[event.Channel]
	if !ok {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws: failed to marshal server event", "error", err)
		return
	}

	for client := range subs {
		select {
		case client.send <- message:
		default:
			h.log.Warn("ws: client buffer full, disconnecting", "id", client.id, "remote", client.remote)
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)

	for channel, subs := range h.channels {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Publish queues an event for delivery. It never blocks; events are
// dropped when the hub falls behind.
func (h *Hub) Publish(ev *domain.WsServerEvent) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("ws: event buffer full, dropping event", "channel", ev.Channel, "event", ev.Event)
	}
}

// ObserveLine forwards live command output to the command_output
// channel.
func (h *Hub) ObserveLine(line domain.OutputLine) {
	h.Publish(&domain.WsServerEvent{
		Channel: domain.WsChannelCommandOutput,
		Event:   domain.WsEventCommandOutput,
		Payload: line,
	})
}

// send hands a request to the hub loop unless the hub has stopped.
func send[T any](h *Hub, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.done:
	}
}
