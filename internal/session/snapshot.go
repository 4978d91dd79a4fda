package session

// Connected reports whether the session status is connected.
func (m *Manager) Connected() bool {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.Connected
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.Status
}

// State returns a copy of the application state.
func (m *Manager) State() State {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.State.Clone()
}

// Subscriptions returns a copy of the tracked topics and their states.
func (m *Manager) Subscriptions() map[string]SubState {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return copySubs(m.snap.Subscriptions)
}

// Snapshot returns a copy of the latest session snapshot.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.clone()
}

// publishSnapshot captures loop-owned state for off-loop readers and wakes
// the watcher fan-out. Never blocks.
func (m *Manager) publishSnapshot() {
	snap := Snapshot{
		Identity:      m.identity,
		Status:        m.status,
		Connected:     m.status == StatusConnected,
		State:         m.state,
		Subscriptions: m.subs.snapshot(),
		OutboundLen:   len(m.outbound),
		InboundLen:    len(m.inbound),
	}

	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()

	select {
	case m.snapNotify <- struct{}{}:
	default:
	}
}

func (s Snapshot) clone() Snapshot {
	s.State = s.State.Clone()
	s.Subscriptions = copySubs(s.Subscriptions)
	return s
}

func copySubs(in map[string]SubState) map[string]SubState {
	out := make(map[string]SubState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
