package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrConfigNotLoaded is returned when a config cannot be served from the
	// cache after loading.
	ErrConfigNotLoaded = errors.New("config: configuration has not been loaded")

	// ErrNilPointer is returned when a nil pointer is passed to Load.
	ErrNilPointer = errors.New("config: nil pointer provided")

	// ErrLoadingEnv is returned when an explicitly named .env file cannot be
	// read.
	ErrLoadingEnv = errors.New("config: failed to load env file")
)
