package presence

import "errors"

var (
	// ErrNilConn is returned when binding a nil connection.
	ErrNilConn = errors.New("presence: nil connection")

	// ErrEmptyUserID is returned when binding a connection without a user.
	ErrEmptyUserID = errors.New("presence: empty user ID")

	// ErrEmptyEvent is returned when delivering with an empty event name.
	ErrEmptyEvent = errors.New("presence: empty event name")

	// ErrRegistryClosed is returned by operations on a closed registry.
	ErrRegistryClosed = errors.New("presence: registry is closed")

	// ErrNoBus is returned by Relay when the registry has no event bus.
	ErrNoBus = errors.New("presence: registry has no event bus")
)
