package mqtt

import "errors"

// Errors returned by Client. Broker and timeout failures wrap the operation
// error, so callers match with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic covers empty topics, wildcards in publish topics and
	// misplaced wildcards in subscription filters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
