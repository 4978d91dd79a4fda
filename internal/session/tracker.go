package session

import (
	"time"

	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

type subscriptionEntry struct {
	state SubState

	// deferred holds a failed topic back until the next retry tick, so a
	// refused subscription is not re-issued in the same evaluation.
	deferred bool

	// failures counts consecutive acknowledgment failures.
	failures int

	// attempt identifies the outstanding subscribe; only its ack applies.
	attempt uint64
}

// subscriptionSet is the desired subscription set in insertion order.
type subscriptionSet struct {
	order      []string
	entries    map[string]*subscriptionEntry
	reconciled bool

	// attempts numbers subscribe requests across the set's lifetime, so an
	// ack for a removed and re-added topic never matches the new entry.
	attempts uint64
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{
		entries:    make(map[string]*subscriptionEntry),
		reconciled: true,
	}
}

// add tracks topic at SubUnsubscribed. It reports false if the topic was
// already tracked, in which case nothing changes.
func (s *subscriptionSet) add(topic string) bool {
	if _, ok := s.entries[topic]; ok {
		return false
	}
	s.entries[topic] = &subscriptionEntry{state: SubUnsubscribed}
	s.order = append(s.order, topic)
	s.reconciled = false
	return true
}

// remove deletes topic. It reports false if the topic was not tracked.
func (s *subscriptionSet) remove(topic string) bool {
	if _, ok := s.entries[topic]; !ok {
		return false
	}
	delete(s.entries, topic)
	for i, t := range s.order {
		if t == topic {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *subscriptionSet) get(topic string) (*subscriptionEntry, bool) {
	e, ok := s.entries[topic]
	return e, ok
}

// resetAll returns every entry to SubUnsubscribed after a lost link.
func (s *subscriptionSet) resetAll() {
	for _, e := range s.entries {
		e.state = SubUnsubscribed
		e.deferred = false
	}
	s.reconciled = len(s.entries) == 0
}

func (s *subscriptionSet) clearDeferred() {
	for _, e := range s.entries {
		e.deferred = false
	}
}

func (s *subscriptionSet) allSubscribed() bool {
	for _, e := range s.entries {
		if e.state != SubSubscribed {
			return false
		}
	}
	return true
}

func (s *subscriptionSet) snapshot() map[string]SubState {
	out := make(map[string]SubState, len(s.entries))
	for topic, e := range s.entries {
		out[topic] = e.state
	}
	return out
}

// retryTimer is the single pending re-evaluation timer.
type retryTimer struct {
	timer   *time.Timer
	pending bool
}

// schedule arms the timer unless one is already pending.
func (r *retryTimer) schedule(d time.Duration, fire func()) bool {
	if r.pending {
		return false
	}
	r.pending = true
	r.timer = time.AfterFunc(d, fire)
	return true
}

func (r *retryTimer) fired() {
	r.pending = false
	r.timer = nil
}

func (r *retryTimer) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.pending = false
	r.timer = nil
}

func (m *Manager) subscribe(topic string) {
	if m.subs.add(topic) {
		m.logger.Debug("subscription added", "topic", topic)
	}
}

func (m *Manager) unsubscribe(topic string) {
	if !m.subs.remove(topic) {
		return
	}
	m.logger.Debug("subscription removed", "topic", topic)
	if m.status == StatusConnected && m.transport != nil {
		m.transport.Unsubscribe(topic)
	}
	if m.subs.allSubscribed() {
		m.subs.reconciled = true
	}
}

// reconcile issues a subscribe for every unsubscribed topic while the link
// is up. Anything it cannot finish now is picked up by the retry timer.
func (m *Manager) reconcile() {
	if m.subs.reconciled {
		return
	}
	if m.status != StatusConnected || m.transport == nil || !m.transport.IsLinkActive() {
		m.scheduleRetry()
		return
	}

	issued := 0
	for _, topic := range m.subs.order {
		e := m.subs.entries[topic]
		if e.state != SubUnsubscribed || e.deferred {
			continue
		}
		m.issueSubscribe(topic, e)
		issued++
	}

	if m.subs.allSubscribed() {
		m.subs.reconciled = true
		return
	}
	if issued == 0 {
		m.scheduleRetry()
	}
}

func (m *Manager) issueSubscribe(topic string, e *subscriptionEntry) {
	gen := m.gen
	m.subs.attempts++
	attempt := m.subs.attempts
	e.attempt = attempt
	e.state = SubPending
	m.observer.SubscribeAttempted(topic)
	m.logger.Debug("MQTT subscribing", "topic", topic, "generation", gen)

	m.transport.Subscribe(topic, m.cfg.SubscribeQoS, mqtt.SubscribeCallbacks{
		OnSuccess: func() { m.post(subscribeAcked{gen: gen, attempt: attempt, topic: topic}) },
		OnFailure: func(err error) { m.post(subscribeAcked{gen: gen, attempt: attempt, topic: topic, err: err}) },
		Timeout:   m.cfg.SubscribeTimeout,
	})
}

func (m *Manager) onSubscribeAcked(ev subscribeAcked) {
	if ev.gen != m.gen {
		m.logger.Debug("stale subscribe ack dropped", "topic", ev.topic, "generation", ev.gen, "current", m.gen)
		return
	}
	e, ok := m.subs.get(ev.topic)
	if !ok || e.state != SubPending {
		return
	}
	if e.attempt != ev.attempt {
		m.logger.Debug("subscribe ack for an earlier request dropped", "topic", ev.topic, "attempt", ev.attempt, "current", e.attempt)
		return
	}

	if ev.err != nil {
		e.state = SubUnsubscribed
		e.deferred = true
		e.failures++
		m.observer.SubscribeFailed(ev.topic, ev.err)
		m.logger.Warn("MQTT subscribe failed", "topic", ev.topic, "attempt", e.failures, "error", ev.err)
		if limit := m.cfg.MaxSubscribeAttempts; limit > 0 && e.failures == limit {
			m.logger.Error("MQTT subscription keeps failing, still retrying",
				"topic", ev.topic,
				"attempts", e.failures,
			)
		}
		m.scheduleRetry()
		return
	}

	e.state = SubSubscribed
	e.failures = 0
	m.logger.Info("MQTT subscribed", "topic", ev.topic)
}

func (m *Manager) scheduleRetry() {
	if m.retry.schedule(m.cfg.RetryInterval, func() { m.post(retryFired{}) }) {
		m.logger.Debug("subscription retry scheduled", "in", m.cfg.RetryInterval)
	}
}

func (m *Manager) onRetryFired() {
	m.retry.fired()
	m.subs.clearDeferred()
}
