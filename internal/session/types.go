package session

import (
	"encoding/json"
	"strings"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

// Status is the connection status of the session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// SubState is the state of one tracked subscription.
type SubState string

const (
	SubUnsubscribed SubState = "unsubscribed"
	SubPending      SubState = "pending"
	SubSubscribed   SubState = "subscribed"
)

// Transport is the broker handle the session drives.
//
// Completion of Connect and Subscribe is reported through callbacks on
// arbitrary goroutines; the session posts them back onto its own loop.
// *mqtt.Handle satisfies this interface.
type Transport interface {
	Connect(cb mqtt.ConnectCallbacks)
	Subscribe(topic string, qos byte, cb mqtt.SubscribeCallbacks)
	Unsubscribe(topic string)
	Publish(msg mqtt.Message)
	IsLinkActive() bool
	SetOnConnectionLost(fn func(err error))
	SetOnMessageArrived(fn func(topic string, payload []byte))
	Disconnect()
}

// DialFunc creates a fresh, not yet connected Transport for clientID.
type DialFunc func(clientID string) Transport

// Topic is the caller's part of an outbound topic, one or more segments.
// The session joins the configured prefix in front of it.
type Topic []string

// Path builds a Topic from segments.
//
//	Path("print/")          // prefix + "/print/"
//	Path("status", "line-3") // prefix + "/status/line-3"
func Path(segments ...string) Topic {
	return Topic(segments)
}

func (t Topic) String() string {
	return strings.Join(t, mqtt.TopicSeparator)
}

// PublishOption adjusts how one message is published.
type PublishOption func(*publishOptions)

type publishOptions struct {
	qos      byte
	retained bool
}

// QoS sets the delivery guarantee level (0, 1 or 2). Default 0.
func QoS(qos byte) PublishOption {
	return func(o *publishOptions) { o.qos = qos }
}

// Retained asks the broker to keep the message for late subscribers. Default false.
func Retained(retained bool) PublishOption {
	return func(o *publishOptions) { o.retained = retained }
}

// InboundMessage is one arrived message after JSON decoding.
type InboundMessage struct {
	Topic   string
	Payload any
	Raw     json.RawMessage
}

// Object returns the payload as a JSON object, or nil if it is not one.
func (m InboundMessage) Object() map[string]any {
	obj, _ := m.Payload.(map[string]any)
	return obj
}

// State is the reducer-owned application state.
//
// The session only writes the "connected" key; everything else belongs to
// the application reducer.
type State map[string]any

// ConnectedKey is the state key the session maintains.
const ConnectedKey = "connected"

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	out := make(State, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Action is anything a reducer can apply.
type Action interface {
	ActionType() string
}

// ActionConnectionStatus is the type of ConnectionStatusChanged.
const ActionConnectionStatus = "MQTT_STATUS"

// ConnectionStatusChanged is dispatched by the session on every connect and
// disconnect. It is applied by the session itself and never reaches the
// application reducer.
type ConnectionStatusChanged struct {
	Connected bool
}

func (ConnectionStatusChanged) ActionType() string { return ActionConnectionStatus }

// Reducer returns the next state for an action. It must return an error
// wrapping ErrUnhandledAction for action types it does not know. The
// input state is a private copy and may be modified.
type Reducer func(state State, action Action) (State, error)

// DispatchFunc applies an action to the current state.
type DispatchFunc func(action Action) error

// MessageAction turns one inbound message into zero or more dispatched actions.
type MessageAction func(dispatch DispatchFunc, msg InboundMessage) error

// Snapshot is an immutable view of the session, published after every event.
type Snapshot struct {
	Identity      string              `json:"identity"`
	Status        Status              `json:"status"`
	Connected     bool                `json:"connected"`
	State         State               `json:"state"`
	Subscriptions map[string]SubState `json:"subscriptions"`
	OutboundLen   int                 `json:"outbound_len"`
	InboundLen    int                 `json:"inbound_len"`
}

// Logger is the logging interface used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
