// Package bus implements the WebSocket Bus: the single fan-out point
// through which the Engine Coordinator publishes raw samples, processed
// windows, battery readings, device info and lifecycle events to any
// number of subscribed clients, and through which clients send commands
// back (scan, connect, start/stop streaming, subscribe/unsubscribe).
package bus

import "github.com/vitalstream/bioengine/internal/types"

// Envelope is the JSON shape of every server-to-client message.
type Envelope struct {
	Type    types.MessageType `json:"type"`
	Channel types.Channel     `json:"channel,omitempty"`
	Data    any               `json:"data,omitempty"`
	Error   *ErrorPayload     `json:"error,omitempty"`
}

// ErrorPayload is the body of a "error" envelope.
type ErrorPayload struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Details any             `json:"details,omitempty"`
}

// Command is the JSON shape of a client-to-server frame.
type Command struct {
	Type     types.CommandType `json:"type"`
	Channels []types.Channel   `json:"channels,omitempty"`
	Address  string            `json:"address,omitempty"`
	Duration float64           `json:"duration_s,omitempty"`
}

func dataEnvelope(msgType types.MessageType, ch types.Channel, data any) Envelope {
	return Envelope{Type: msgType, Channel: ch, Data: data}
}

func errorEnvelope(code types.ErrorCode, message string) Envelope {
	return Envelope{Type: types.MessageError, Error: &ErrorPayload{Code: code, Message: message}}
}

func pongEnvelope() Envelope {
	return Envelope{Type: types.MessagePong}
}

func subscriptionConfirmedEnvelope(channels []types.Channel) Envelope {
	return Envelope{Type: types.MessageSubscriptionConfirmed, Data: channels}
}

// HealthCheckEnvelope wraps a status snapshot as a health_check_response
// frame, for the Coordinator's command handler to send directly back to
// the requesting client.
func HealthCheckEnvelope(status any) Envelope {
	return Envelope{Type: types.MessageHealthCheckResponse, Data: status}
}

// ErrorEnvelope is the exported form of errorEnvelope, for callers outside
// this package (the Coordinator's command handler) that need to report a
// domain error back to one client without going through HandleCommand.
func ErrorEnvelope(code types.ErrorCode, message string) Envelope {
	return errorEnvelope(code, message)
}
