package session

import "sync"

// Watcher delivers session snapshots.
//
// Delivery is latest-wins: a slow reader skips intermediate snapshots but
// always sees the most recent one. C is closed after Close or when the
// session stops.
type Watcher struct {
	C <-chan Snapshot

	quit chan struct{}
	once sync.Once
}

// Close stops delivery. Safe to call more than once.
func (w *Watcher) Close() {
	w.once.Do(func() { close(w.quit) })
}

// Watch subscribes to snapshots. The current snapshot is delivered first.
func (m *Manager) Watch() *Watcher {
	out := make(chan Snapshot, 1)
	w := &Watcher{C: out, quit: make(chan struct{})}

	m.busMu.RLock()
	defer m.busMu.RUnlock()
	if m.isStopping() {
		close(out)
		return w
	}

	raw := m.bus.Sub(snapshotTopic)
	go m.relay(w, raw, out)
	return w
}

func (m *Manager) isStopping() bool {
	select {
	case <-m.stopping:
		return true
	default:
		return false
	}
}

// shutdownBus stops the fan-out, which closes every watcher's channel.
func (m *Manager) shutdownBus() {
	m.busMu.Lock()
	defer m.busMu.Unlock()
	close(m.stopping)
	m.bus.Shutdown()
}

// unwatch releases raw. After shutdown raw is already closed.
func (m *Manager) unwatch(raw chan interface{}) {
	m.busMu.RLock()
	defer m.busMu.RUnlock()
	if !m.isStopping() {
		m.bus.Unsub(raw, snapshotTopic)
	}
}

// relay reads the pubsub channel promptly, so the fan-out never blocks on a
// slow consumer, and hands the newest snapshot to out.
func (m *Manager) relay(w *Watcher, raw chan interface{}, out chan<- Snapshot) {
	defer close(out)

	next := m.Snapshot()
	pending := true

	for {
		var send chan<- Snapshot
		if pending {
			send = out
		}

		select {
		case v, ok := <-raw:
			if !ok {
				return
			}
			if snap, isSnap := v.(Snapshot); isSnap {
				next = snap
				pending = true
			}
		case send <- next:
			pending = false
		case <-w.quit:
			// Unsub closes raw; keep draining so the fan-out is never stuck
			// sending to us meanwhile.
			go m.unwatch(raw)
			for range raw {
			}
			return
		}
	}
}

// forwardSnapshots publishes the latest snapshot to watchers each time the
// loop signals a change.
func (m *Manager) forwardSnapshots(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-m.snapNotify:
			m.bus.Pub(m.Snapshot(), snapshotTopic)
		}
	}
}
