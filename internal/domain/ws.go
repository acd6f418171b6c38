package domain

import "encoding/json"

const (
	WsChannelCommandOutput = "command_output"
	WsChannelActions       = "actions"
)

const (
	WsEventCommandOutput  = "command_output"
	WsEventActionStarted  = "action_started"
	WsEventActionFinished = "action_finished"
)

const (
	WsSubscribe   = "subscribe"
	WsUnsubscribe = "unsubscribe"
)

type WsClientMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WsServerEvent struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type ActionEventPayload struct {
	Action  string `json:"action"`
	Source  string `json:"source,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EventPublisher fans deploy activity out to live subscribers.
// Publishing never blocks the caller.
type EventPublisher interface {
	Publish(ev *WsServerEvent)
}
