package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cskr/pubsub"
	"github.com/google/uuid"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

const (
	defaultClientIDPrefix   = "labeldash-"
	defaultSubscribeTimeout = 5 * time.Second
	defaultRetryInterval    = time.Second
	defaultRedialInterval   = time.Second

	// snapshotTopic is the pubsub topic snapshots are fanned out on.
	snapshotTopic = "snapshot"

	// watchQueueLength is the pubsub channel capacity per watcher.
	watchQueueLength = 16
)

// Config holds the construction parameters of a Manager.
type Config struct {
	// Dial creates one transport handle per connection attempt. Required.
	Dial DialFunc

	// ClientIDPrefix is prepended to the session identity to form the
	// MQTT client id. Defaults to "labeldash-".
	ClientIDPrefix string

	// Prefix is joined in front of every outbound topic.
	Prefix []string

	// Subscriptions are requested on every successful connect.
	Subscriptions []string

	// InitialState seeds the application state.
	InitialState State

	// Reducer applies application actions. Required.
	Reducer Reducer

	// MessageAction maps each inbound message to actions.
	// If nil, inbound messages are decoded and discarded.
	MessageAction MessageAction

	// SubscribeQoS is the QoS requested for every subscription.
	SubscribeQoS byte

	// SubscribeTimeout bounds each acknowledgment wait. Defaults to 5s.
	SubscribeTimeout time.Duration

	// RetryInterval paces re-evaluation while subscriptions are not
	// reconciled. Defaults to 1s.
	RetryInterval time.Duration

	// RedialInterval is the pause after a failed connect attempt before the
	// next one is dialled. Defaults to 1s.
	RedialInterval time.Duration

	// MaxSubscribeAttempts logs an error once a topic has failed this many
	// consecutive times. Retries continue regardless. 0 disables the check.
	MaxSubscribeAttempts int

	// Debug logs every outbound and inbound message.
	Debug bool

	Logger   Logger
	Observer Observer
}

// Manager is the session actor.
//
// Thread Safety: all exported methods are safe for concurrent use. Loop-owned
// fields below the marker are only touched by the Run goroutine.
type Manager struct {
	cfg      Config
	identity string
	clientID string
	logger   Logger
	observer Observer
	now      func() time.Time

	mailbox *mailbox
	running atomic.Bool
	done    chan struct{}

	snapMu     sync.RWMutex
	snap       Snapshot
	snapNotify chan struct{}

	// busMu guards bus against Sub and Unsub racing its shutdown; a
	// stopped pubsub never answers them. stopping is closed under it.
	busMu    sync.RWMutex
	bus      *pubsub.PubSub
	stopping chan struct{}

	// Loop-owned.
	status       Status
	gen          uint64
	transport    Transport
	subs         *subscriptionSet
	retry        retryTimer
	redial       retryTimer
	outbound     []mqtt.Message
	inbound      []messageArrived
	state        State
	flushWaiters []chan struct{}

	// afterStep runs once the snapshot of the current step is published,
	// so a caller released by it always reads its own effects.
	afterStep []func()
}

// New creates a session Manager. The session does nothing until Run is called.
//
// Parameters:
//   - cfg: Session configuration; Dial and Reducer are required
//
// Returns:
//   - *Manager: Ready to Run
//   - error: ErrNoDialer, ErrNoReducer, or ErrInvalidTopic for an empty subscription
func New(cfg Config) (*Manager, error) {
	if cfg.Dial == nil {
		return nil, ErrNoDialer
	}
	if cfg.Reducer == nil {
		return nil, ErrNoReducer
	}
	for _, topic := range cfg.Subscriptions {
		if topic == "" {
			return nil, fmt.Errorf("%w: empty subscription", ErrInvalidTopic)
		}
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = defaultClientIDPrefix
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.RedialInterval <= 0 {
		cfg.RedialInterval = defaultRedialInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	identity := uuid.New().String()
	state := cfg.InitialState.Clone()
	state[ConnectedKey] = false

	m := &Manager{
		cfg:        cfg,
		identity:   identity,
		clientID:   cfg.ClientIDPrefix + identity,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		now:        time.Now,
		mailbox:    newMailbox(),
		done:       make(chan struct{}),
		snapNotify: make(chan struct{}, 1),
		bus:        pubsub.New(watchQueueLength),
		stopping:   make(chan struct{}),
		status:     StatusDisconnected,
		subs:       newSubscriptionSet(),
		state:      state,
	}
	m.publishSnapshot()
	return m, nil
}

// Identity returns the session identity, fixed for the Manager's lifetime.
func (m *Manager) Identity() string {
	return m.identity
}

// ClientID returns the MQTT client id every connection attempt uses.
func (m *Manager) ClientID() string {
	return m.clientID
}

// Run drives the session until ctx is cancelled, then disconnects.
//
// Returns:
//   - error: nil after a clean stop, or ErrAlreadyRunning
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	stopForward := make(chan struct{})
	forwardDone := make(chan struct{})
	go m.forwardSnapshots(stopForward, forwardDone)

	defer func() {
		m.stop()
		close(stopForward)
		<-forwardDone
		m.shutdownBus()
		close(m.done)
	}()

	m.logger.Info("session started", "identity", m.identity, "client_id", m.clientID)
	m.step(nil)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session stopping", "identity", m.identity)
			return nil
		case <-m.mailbox.notify:
			for _, ev := range m.mailbox.take() {
				m.step(ev)
			}
		}
	}
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// step handles one event and re-evaluates the session.
func (m *Manager) step(ev event) {
	if ev != nil {
		m.handle(ev)
	}
	m.evaluate()
	m.publishSnapshot()
	for _, fn := range m.afterStep {
		fn()
	}
	m.afterStep = nil
}

func (m *Manager) release(ch chan struct{}) {
	m.afterStep = append(m.afterStep, func() { close(ch) })
}

func (m *Manager) handle(ev event) {
	switch e := ev.(type) {
	case connectSucceeded:
		m.onConnectSucceeded(e)
	case connectFailed:
		m.onConnectFailed(e)
	case connectionLost:
		m.onConnectionLost(e)
	case subscribeAcked:
		m.onSubscribeAcked(e)
	case messageArrived:
		m.onMessageArrived(e)
	case subscribeRequest:
		m.subscribe(e.topic)
	case unsubscribeRequest:
		m.unsubscribe(e.topic)
	case publishRequest:
		m.outbound = append(m.outbound, e.msg)
	case dispatchRequest:
		err := m.apply(e.action)
		m.afterStep = append(m.afterStep, func() { e.reply <- err })
	case flushWaitRequest:
		if len(m.outbound) == 0 {
			m.release(e.done)
		} else {
			m.flushWaiters = append(m.flushWaiters, e.done)
		}
	case syncRequest:
		m.release(e.done)
	case retryFired:
		m.onRetryFired()
	case redialFired:
		m.redial.fired()
	default:
		m.logger.Error("session received unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

// evaluate brings the session towards its desired state.
func (m *Manager) evaluate() {
	m.ensureConnected()
	m.reconcile()
	m.flushOutbound()
	m.drainInbound()
}

// stop tears the session down when Run exits.
func (m *Manager) stop() {
	m.retry.stop()
	m.redial.stop()
	if m.transport != nil {
		m.transport.Disconnect()
		m.transport = nil
	}
	wasConnected := m.status == StatusConnected
	m.status = StatusDisconnected
	m.gen++
	m.subs.resetAll()
	m.setConnected(false, wasConnected)
	m.publishSnapshot()
	m.logger.Info("session stopped", "identity", m.identity)
}

func (m *Manager) post(ev event) {
	m.mailbox.post(ev)
}

// Subscribe adds topic to the desired subscription set. Calling it for a
// topic that is already tracked has no effect.
func (m *Manager) Subscribe(topic string) {
	if topic == "" {
		m.logger.Warn("subscribe ignored", "error", ErrInvalidTopic)
		return
	}
	m.post(subscribeRequest{topic: topic})
}

// Unsubscribe removes topic from the desired set and, when connected,
// unsubscribes at the broker. Untracked topics are ignored.
func (m *Manager) Unsubscribe(topic string) {
	m.post(unsubscribeRequest{topic: topic})
}

// Dispatch applies an application action through the reducer.
//
// Returns:
//   - error: the reducer's error (wrapping ErrUnhandledAction for unknown
//     action types), ErrReservedAction, ctx.Err(), or ErrStopped
func (m *Manager) Dispatch(ctx context.Context, action Action) error {
	if _, ok := action.(ConnectionStatusChanged); ok {
		return ErrReservedAction
	}
	reply := make(chan error, 1)
	m.post(dispatchRequest{action: action, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// WaitFlushed blocks until every message queued before the call has been
// handed to the transport.
func (m *Manager) WaitFlushed(ctx context.Context) error {
	return m.await(ctx, func(done chan struct{}) event { return flushWaitRequest{done: done} })
}

// Sync blocks until every call made before it has been handled and the
// session has re-evaluated.
func (m *Manager) Sync(ctx context.Context) error {
	return m.await(ctx, func(done chan struct{}) event { return syncRequest{done: done} })
}

func (m *Manager) await(ctx context.Context, req func(chan struct{}) event) error {
	done := make(chan struct{})
	m.post(req(done))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}
