package sender

import "errors"

var (
	// ErrInvalidConfig is returned by ValidateConfig for misconfigured senders.
	ErrInvalidConfig = errors.New("sender: invalid configuration")

	// ErrUnknownChannel is returned by the registry for channels without a
	// registered sender.
	ErrUnknownChannel = errors.New("sender: no sender registered for channel")

	// ErrMissingRecipient signals that the notification carries no address
	// for the sender's channel. Reported as a failed Result, not an error.
	ErrMissingRecipient = errors.New("sender: recipient address missing")
)
