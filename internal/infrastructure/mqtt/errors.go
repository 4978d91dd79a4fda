package mqtt

import "errors"

// Errors reported by Handle. Failures delivered through callbacks wrap one
// of these, so callers can classify them with errors.Is.
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost wraps the reason paho gives when an established
	// link drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed also covers a SUBACK carrying the 0x80 failure code.
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrTimeout is returned when a token is not acknowledged within the
	// configured wait.
	ErrTimeout = errors.New("mqtt: acknowledgment timed out")

	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
