package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

// fakeTransport implements Transport. Callbacks are fired manually by tests.
type fakeTransport struct {
	mu sync.Mutex

	clientID     string
	linkActive   bool
	connectCB    mqtt.ConnectCallbacks
	connects     int
	subCBs       map[string][]mqtt.SubscribeCallbacks
	subscribes   []string
	unsubscribes []string
	published    []mqtt.Message
	onLost       func(error)
	onMessage    func(string, []byte)
	disconnected bool
}

func (f *fakeTransport) Connect(cb mqtt.ConnectCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCB = cb
	f.connects++
}

func (f *fakeTransport) Subscribe(topic string, _ byte, cb mqtt.SubscribeCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	f.subCBs[topic] = append(f.subCBs[topic], cb)
}

func (f *fakeTransport) Unsubscribe(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, topic)
}

func (f *fakeTransport) Publish(msg mqtt.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
}

func (f *fakeTransport) IsLinkActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkActive
}

func (f *fakeTransport) SetOnConnectionLost(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLost = fn
}

func (f *fakeTransport) SetOnMessageArrived(fn func(topic string, payload []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = fn
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.linkActive = false
}

// succeedConnect opens the link and fires the connect success callback.
func (f *fakeTransport) succeedConnect() {
	f.mu.Lock()
	f.linkActive = true
	cb := f.connectCB
	f.mu.Unlock()
	cb.OnSuccess()
}

func (f *fakeTransport) failConnect(err error) {
	f.mu.Lock()
	cb := f.connectCB
	f.mu.Unlock()
	cb.OnFailure(err)
}

func (f *fakeTransport) loseConnection(err error) {
	f.mu.Lock()
	f.linkActive = false
	fn := f.onLost
	f.mu.Unlock()
	fn(err)
}

// ack completes the latest subscribe for topic; a nil err is a success.
func (f *fakeTransport) ack(t *testing.T, topic string, err error) {
	t.Helper()
	f.mu.Lock()
	n := len(f.subCBs[topic])
	f.mu.Unlock()
	if n == 0 {
		t.Fatalf("no subscribe issued for %q", topic)
	}
	f.ackNth(t, topic, n-1, err)
}

// ackNth completes the i-th subscribe issued for topic, counting from zero.
func (f *fakeTransport) ackNth(t *testing.T, topic string, i int, err error) {
	t.Helper()
	f.mu.Lock()
	cbs := f.subCBs[topic]
	f.mu.Unlock()
	if i >= len(cbs) {
		t.Fatalf("subscribe #%d for %q never issued (%d issued)", i, topic, len(cbs))
	}
	cb := cbs[i]
	if err != nil {
		cb.OnFailure(err)
		return
	}
	cb.OnSuccess()
}

func (f *fakeTransport) deliver(topic string, payload string) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn(topic, []byte(payload))
}

func (f *fakeTransport) subscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

func (f *fakeTransport) publishedMessages() []mqtt.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mqtt.Message(nil), f.published...)
}

// fakeDialer hands out a new fakeTransport per Dial.
type fakeDialer struct {
	mu      sync.Mutex
	handles []*fakeTransport
	dialed  chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 32)}
}

func (d *fakeDialer) Dial(clientID string) Transport {
	f := &fakeTransport{clientID: clientID, subCBs: make(map[string][]mqtt.SubscribeCallbacks)}
	d.mu.Lock()
	d.handles = append(d.handles, f)
	d.mu.Unlock()
	d.dialed <- f
	return f
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// next waits for the next dialled handle.
func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case f := <-d.dialed:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no transport dialled within 2s")
		return nil
	}
}

// Test actions and reducer.

type setKey struct {
	key   string
	value any
}

func (setKey) ActionType() string { return "SET" }

type unknownAction struct{}

func (unknownAction) ActionType() string { return "UNKNOWN" }

func testReducer(state State, action Action) (State, error) {
	switch a := action.(type) {
	case setKey:
		state[a.key] = a.value
		return state, nil
	default:
		return nil, UnhandledAction(action)
	}
}

// startManager runs a Manager over a fakeDialer until the test ends.
func startManager(t *testing.T, mutate func(*Config)) (*Manager, *fakeDialer) {
	t.Helper()
	d := newFakeDialer()
	cfg := Config{
		Dial:           d.Dial,
		Reducer:        testReducer,
		RetryInterval:  20 * time.Millisecond,
		RedialInterval: 20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := m.Run(ctx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-m.Done():
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return within 2s")
		}
	})
	return m, d
}

// syncLoop waits until the loop has handled everything posted so far.
func syncLoop(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
