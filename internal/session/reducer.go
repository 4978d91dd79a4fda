package session

import "fmt"

// apply runs action through the reducer and installs the result.
//
// ConnectionStatusChanged is handled here and never reaches the application
// reducer. The "connected" key always reflects the session, whatever the
// application reducer returns for it.
func (m *Manager) apply(action Action) error {
	if action == nil {
		return fmt.Errorf("%w: <nil>", ErrUnhandledAction)
	}

	if a, ok := action.(ConnectionStatusChanged); ok {
		next := m.state.Clone()
		next[ConnectedKey] = a.Connected
		m.state = next
		return nil
	}

	connected := m.state[ConnectedKey]
	next, err := m.cfg.Reducer(m.state.Clone(), action)
	if err != nil {
		m.observer.ReducerFailed(action.ActionType(), err)
		return err
	}
	if next == nil {
		next = State{}
	}
	next[ConnectedKey] = connected
	m.state = next
	return nil
}

// UnhandledAction returns the error a reducer reports for an action type it
// does not recognise.
func UnhandledAction(action Action) error {
	return fmt.Errorf("%w: %s", ErrUnhandledAction, actionType(action))
}

func actionType(action Action) string {
	if action == nil {
		return "<nil>"
	}
	return action.ActionType()
}
