package eventbus

import "errors"

var (
	// ErrBusClosed is returned when publishing or subscribing on a closed bus.
	ErrBusClosed = errors.New("eventbus: bus is closed")

	// ErrEmptyEventName is returned when an event name is blank.
	ErrEmptyEventName = errors.New("eventbus: event name cannot be empty")

	// ErrMarshalPayload is returned when the payload cannot be serialized.
	ErrMarshalPayload = errors.New("eventbus: failed to marshal event payload")

	// ErrTransportClosed is returned by transport operations after Close.
	ErrTransportClosed = errors.New("eventbus: transport is closed")
)
