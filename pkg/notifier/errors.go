package notifier

import "errors"

var (
	// ErrStorageNil is returned when constructing a service without storage.
	ErrStorageNil = errors.New("notifier: storage cannot be nil")

	// ErrUserDirectoryNil is returned when constructing a service without a
	// user directory.
	ErrUserDirectoryNil = errors.New("notifier: user directory cannot be nil")

	// ErrSendersNil is returned when constructing a service without a sender
	// registry.
	ErrSendersNil = errors.New("notifier: sender registry cannot be nil")

	// ErrEmptyUserID rejects a send request without a user.
	ErrEmptyUserID = errors.New("notifier: user ID is required")

	// ErrNoChannels rejects a send request without channels.
	ErrNoChannels = errors.New("notifier: at least one channel is required")

	// ErrUnsupportedChannel rejects a send request with an unknown channel.
	ErrUnsupportedChannel = errors.New("notifier: unsupported channel")

	// ErrEmptyContent rejects a send request with neither a template nor
	// inline content.
	ErrEmptyContent = errors.New("notifier: template or content is required")

	// ErrInvalidPriority rejects a send request with an unknown priority.
	ErrInvalidPriority = errors.New("notifier: invalid priority")

	// ErrUserNotFound is returned when the directory has no such user.
	ErrUserNotFound = errors.New("notifier: user not found")

	// ErrUserInactive is returned for deactivated users. No record is
	// created.
	ErrUserInactive = errors.New("notifier: user is inactive")

	// ErrNoChannelsAllowed is returned when preference filtering leaves no
	// channel to deliver on.
	ErrNoChannelsAllowed = errors.New("notifier: no requested channel is enabled for user")

	// ErrNotFound is returned for unknown notification IDs.
	ErrNotFound = errors.New("notifier: notification not found")

	// ErrNotDeliverable is returned by MarkDelivered when the notification
	// is not in the sent status.
	ErrNotDeliverable = errors.New("notifier: notification is not in sent status")
)
