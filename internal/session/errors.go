package session

import "errors"

// Domain-specific errors for the session package.
var (
	// ErrUnhandledAction is returned by a reducer for an action type it does not recognise.
	ErrUnhandledAction = errors.New("unhandled action type")

	// ErrReservedAction is returned by Dispatch for actions only the session may apply.
	ErrReservedAction = errors.New("session: action is reserved")

	// ErrNoDialer is returned by New when Config.Dial is nil.
	ErrNoDialer = errors.New("session: dial function is required")

	// ErrNoReducer is returned by New when Config.Reducer is nil.
	ErrNoReducer = errors.New("session: reducer is required")

	// ErrAlreadyRunning is returned by Run when the loop is already running.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrStopped is returned by calls that need the loop after Run has returned.
	ErrStopped = errors.New("session: stopped")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("session: invalid topic")
)
