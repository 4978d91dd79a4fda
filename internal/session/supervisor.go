package session

import (
	"github.com/nerrad567/labeldash/internal/infrastructure/mqtt"
)

// ensureConnected starts a connection attempt when none is live and no
// redial pause is pending.
//
// At most one handle exists at a time: the previous one is discarded before
// a new one is dialled, and its generation becomes stale.
func (m *Manager) ensureConnected() {
	if m.status != StatusDisconnected || m.redial.pending {
		return
	}

	if m.transport != nil {
		m.transport.Disconnect()
		m.transport = nil
	}

	m.gen++
	gen := m.gen
	t := m.cfg.Dial(m.clientID)
	t.SetOnConnectionLost(func(err error) {
		m.post(connectionLost{gen: gen, err: err})
	})
	t.SetOnMessageArrived(func(topic string, payload []byte) {
		m.post(messageArrived{gen: gen, topic: topic, payload: payload})
	})

	m.transport = t
	m.status = StatusConnecting
	m.logger.Info("MQTT connecting", "client_id", m.clientID, "generation", gen)

	t.Connect(mqtt.ConnectCallbacks{
		OnSuccess: func() { m.post(connectSucceeded{gen: gen}) },
		OnFailure: func(err error) { m.post(connectFailed{gen: gen, err: err}) },
	})
}

func (m *Manager) onConnectSucceeded(e connectSucceeded) {
	if e.gen != m.gen || m.status != StatusConnecting {
		m.logger.Debug("stale connect callback dropped", "generation", e.gen, "current", m.gen)
		return
	}

	m.status = StatusConnected
	m.logger.Info("MQTT connected", "client_id", m.clientID, "generation", e.gen)
	m.setConnected(true, true)

	for _, topic := range m.cfg.Subscriptions {
		m.subscribe(topic)
	}
}

func (m *Manager) onConnectFailed(e connectFailed) {
	if e.gen != m.gen {
		m.logger.Debug("stale connect failure dropped", "generation", e.gen, "current", m.gen)
		return
	}
	m.logger.Warn("MQTT connect failed", "client_id", m.clientID, "error", e.err,
		"retry_in", m.cfg.RedialInterval)
	m.markDisconnected()
	m.redial.schedule(m.cfg.RedialInterval, func() { m.post(redialFired{}) })
}

func (m *Manager) onConnectionLost(e connectionLost) {
	if e.gen != m.gen {
		m.logger.Debug("stale connection loss dropped", "generation", e.gen, "current", m.gen)
		return
	}
	m.logger.Warn("MQTT connection lost", "client_id", m.clientID, "error", e.err)
	m.markDisconnected()
}

// markDisconnected resets the session after a failed or lost link. The
// desired topics are kept; only their state is reset.
func (m *Manager) markDisconnected() {
	wasConnected := m.status == StatusConnected
	m.status = StatusDisconnected
	m.subs.resetAll()
	m.setConnected(false, wasConnected)
}

// setConnected applies ConnectionStatusChanged and, if notify is set,
// reports the change to the observer.
func (m *Manager) setConnected(connected, notify bool) {
	if err := m.apply(ConnectionStatusChanged{Connected: connected}); err != nil {
		m.logger.Error("connection status not applied", "error", err)
	}
	if notify {
		m.observer.ConnectionChanged(m.identity, connected)
	}
}
