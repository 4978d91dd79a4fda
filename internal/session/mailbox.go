package session

import (
	"sync"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

// event is anything handled by the session loop.
type event any

// Transport callbacks. gen identifies the handle that produced them.
type (
	connectSucceeded struct{ gen uint64 }

	connectFailed struct {
		gen uint64
		err error
	}

	connectionLost struct {
		gen uint64
		err error
	}

	subscribeAcked struct {
		gen     uint64
		attempt uint64
		topic   string
		err     error
	}

	messageArrived struct {
		gen     uint64
		topic   string
		payload []byte
	}
)

// Requests from the public surface and the timers.
type (
	subscribeRequest   struct{ topic string }
	unsubscribeRequest struct{ topic string }
	publishRequest     struct{ msg mqtt.Message }

	dispatchRequest struct {
		action Action
		reply  chan error
	}

	flushWaitRequest struct{ done chan struct{} }
	syncRequest      struct{ done chan struct{} }
	retryFired       struct{}
	redialFired      struct{}
)

// mailbox is an unbounded FIFO of events.
//
// post never blocks, so transport callbacks running on library goroutines
// can always hand their event over, and nothing is dropped.
type mailbox struct {
	mu     sync.Mutex
	events []event
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (b *mailbox) post(ev event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// take removes and returns every queued event in post order.
func (b *mailbox) take() []event {
	b.mu.Lock()
	defer b.mu.Unlock()
	evs := b.events
	b.events = nil
	return evs
}
