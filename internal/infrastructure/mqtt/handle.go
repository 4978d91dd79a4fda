package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/labeldash/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Message is one outbound publish, already serialized.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectCallbacks receive the outcome of Handle.Connect.
// Exactly one of them is called, on a library goroutine.
type ConnectCallbacks struct {
	OnSuccess func()
	OnFailure func(err error)
}

// SubscribeCallbacks receive the outcome of Handle.Subscribe.
// Exactly one of them is called, on a library goroutine.
type SubscribeCallbacks struct {
	OnSuccess func()
	OnFailure func(err error)

	// Timeout bounds the wait for the SUBACK. Zero means 5 seconds.
	Timeout time.Duration
}

// Dialer creates one Handle per connection attempt.
//
// Handles are never reused: when a link is lost the owner discards the
// handle and dials a new one with the same client identity.
type Dialer struct {
	cfg         config.MQTTConfig
	statusTopic string
	logger      Logger

	// newClient is swapped in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// NewDialer creates a Dialer for the given broker configuration.
//
// If statusTopic is non-empty every handle registers a Last Will on it and
// publishes an online status once connected.
func NewDialer(cfg config.MQTTConfig, statusTopic string, logger Logger) *Dialer {
	return &Dialer{
		cfg:         cfg,
		statusTopic: statusTopic,
		logger:      logger,
		newClient:   pahomqtt.NewClient,
	}
}

// Dial builds a new, not yet connected Handle for clientID.
func (d *Dialer) Dial(clientID string) *Handle {
	opts := buildClientOptions(d.cfg, clientID)
	if d.statusTopic != "" {
		configureLWT(opts, d.statusTopic, clientID)
	}

	h := &Handle{
		clientID:    clientID,
		statusTopic: d.statusTopic,
		logger:      d.logger,
		connectWait: opts.ConnectTimeout + connectWaitMargin,
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		h.handleConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(h.route)

	h.client = d.newClient(opts)
	return h
}

// Handle is a thin wrapper over one paho client instance.
//
// It exposes fire-and-forget connect, publish, subscribe and unsubscribe
// primitives whose completion is reported through callbacks, plus the two
// assignable handlers for lost links and arriving messages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Callbacks run on paho goroutines and must not block.
type Handle struct {
	client      pahomqtt.Client
	clientID    string
	statusTopic string
	logger      Logger
	connectWait time.Duration

	onConnectionLost func(err error)
	onMessageArrived func(topic string, payload []byte)
	handlerMu        sync.RWMutex
}

// ClientID returns the identity this handle connects with.
func (h *Handle) ClientID() string {
	return h.clientID
}

// SetOnConnectionLost assigns the handler called when an established link drops.
func (h *Handle) SetOnConnectionLost(fn func(err error)) {
	h.handlerMu.Lock()
	h.onConnectionLost = fn
	h.handlerMu.Unlock()
}

// SetOnMessageArrived assigns the handler called for every inbound message.
func (h *Handle) SetOnMessageArrived(fn func(topic string, payload []byte)) {
	h.handlerMu.Lock()
	h.onMessageArrived = fn
	h.handlerMu.Unlock()
}

// Connect makes one connection attempt and returns immediately.
//
// cb.OnFailure fires when the broker refuses or cannot be reached, and when
// the attempt outlives the connect timeout. Retrying is up to the caller.
func (h *Handle) Connect(cb ConnectCallbacks) {
	token := h.client.Connect()
	go func() {
		if !token.WaitTimeout(h.connectWait) {
			if cb.OnFailure != nil {
				cb.OnFailure(fmt.Errorf("%w: %w after %s", ErrConnectionFailed, ErrTimeout, h.connectWait))
			}
			return
		}
		if err := token.Error(); err != nil {
			if cb.OnFailure != nil {
				cb.OnFailure(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
			}
			return
		}
		h.publishStatus("online", "")
		if cb.OnSuccess != nil {
			cb.OnSuccess()
		}
	}()
}

// Subscribe requests a subscription and returns immediately.
//
// The outcome is reported through cb once the SUBACK arrives, the broker
// refuses the topic, or cb.Timeout elapses.
func (h *Handle) Subscribe(topic string, qos byte, cb SubscribeCallbacks) {
	fail := func(err error) {
		if cb.OnFailure != nil {
			cb.OnFailure(err)
		}
	}
	if topic == "" {
		go fail(ErrInvalidTopic)
		return
	}
	if qos > maxQoS {
		go fail(ErrInvalidQoS)
		return
	}

	timeout := cb.Timeout
	if timeout <= 0 {
		timeout = defaultSubscribeTimeout
	}

	token := h.client.Subscribe(topic, qos, h.route)
	go func() {
		if !token.WaitTimeout(timeout) {
			fail(fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, timeout))
			return
		}
		if err := token.Error(); err != nil {
			fail(fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
			return
		}
		if st, ok := token.(*pahomqtt.SubscribeToken); ok {
			if code, found := st.Result()[topic]; found && code >= subackFailure {
				fail(fmt.Errorf("%w: broker refused %q (code 0x%02x)", ErrSubscribeFailed, topic, code))
				return
			}
		}
		if cb.OnSuccess != nil {
			cb.OnSuccess()
		}
	}()
}

// Unsubscribe removes a subscription. Failures are logged, not returned.
func (h *Handle) Unsubscribe(topic string) {
	if topic == "" {
		return
	}
	token := h.client.Unsubscribe(topic)
	go func() {
		if !token.WaitTimeout(defaultSubscribeTimeout) {
			h.warn("MQTT unsubscribe timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			h.warn("MQTT unsubscribe failed", "topic", topic, "error", fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err))
		}
	}()
}

// Publish hands msg to the library and returns immediately.
//
// Delivery beyond what the requested QoS guarantees is not tracked;
// failures are logged.
func (h *Handle) Publish(msg Message) {
	if msg.Topic == "" {
		h.warn("MQTT publish dropped", "error", ErrInvalidTopic)
		return
	}
	if msg.QoS > maxQoS {
		h.warn("MQTT publish dropped", "topic", msg.Topic, "error", ErrInvalidQoS)
		return
	}
	token := h.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			h.warn("MQTT publish failed", "topic", msg.Topic, "error", fmt.Errorf("%w: %w", ErrPublishFailed, err))
		}
	}()
}

// IsLinkActive reports whether the network link is currently open.
func (h *Handle) IsLinkActive() bool {
	return h.client.IsConnectionOpen()
}

// Disconnect closes the link, publishing a graceful offline status first
// when the link is open. Safe to call on a handle that never connected.
func (h *Handle) Disconnect() {
	if h.client.IsConnectionOpen() && h.statusTopic != "" {
		token := h.client.Publish(h.statusTopic, 1, true, buildStatusPayload("offline", h.clientID, "graceful_shutdown"))
		token.WaitTimeout(defaultSubscribeTimeout)
	}
	h.client.Disconnect(defaultDisconnectQuiesce)
}

func (h *Handle) handleConnectionLost(err error) {
	h.handlerMu.RLock()
	fn := h.onConnectionLost
	h.handlerMu.RUnlock()
	if fn != nil {
		fn(fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
}

// route forwards a paho message to the arrival handler with panic recovery.
func (h *Handle) route(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil && h.logger != nil {
			h.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	h.handlerMu.RLock()
	fn := h.onMessageArrived
	h.handlerMu.RUnlock()
	if fn != nil {
		fn(msg.Topic(), msg.Payload())
	}
}

func (h *Handle) publishStatus(status, reason string) {
	if h.statusTopic == "" {
		return
	}
	h.client.Publish(h.statusTopic, 1, true, buildStatusPayload(status, h.clientID, reason))
}

func (h *Handle) warn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
