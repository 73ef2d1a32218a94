package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache stores one parsed copy per configuration type, keyed by type name.
type cache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	global = &cache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}

	defaultEnvOnce sync.Once
)

// LoadEnv loads the named .env files into the process environment before any
// parsing. Unlike the implicit default .env, a named file that cannot be read
// is an error.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnv, err)
	}
	return nil
}

// MustLoadEnv works like LoadEnv but panics on failure.
func MustLoadEnv(files ...string) {
	if err := LoadEnv(files...); err != nil {
		panic(err)
	}
}

// Load parses environment variables into v based on its env field tags. The
// first call for a given type does the work; later calls for the same type
// are served from the cache. A missing default .env file is not an error.
func Load[T any](v *T) error {
	defaultEnvOnce.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := typeName[T]()

	global.mu.RLock()
	if cached, ok := global.values[key]; ok {
		*v = cached.(T)
		global.mu.RUnlock()
		return nil
	}
	global.mu.RUnlock()

	global.mu.Lock()
	once, ok := global.onces[key]
	if !ok {
		once = new(sync.Once)
		global.onces[key] = once
	}
	global.mu.Unlock()

	var parseErr error
	once.Do(func() {
		if err := env.Parse(v); err != nil {
			parseErr = errors.Join(ErrParsingConfig, err)
			return
		}

		global.mu.Lock()
		global.values[key] = *v
		global.mu.Unlock()
	})
	if parseErr != nil {
		return parseErr
	}

	global.mu.RLock()
	defer global.mu.RUnlock()
	if cached, ok := global.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	// The once ran in another goroutine and failed there.
	return ErrConfigNotLoaded
}

// MustLoad works like Load but panics if loading fails. Use it for
// configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache drops all cached configurations. Intended for tests that change
// the process environment between loads.
func ResetCache() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.values = make(map[string]any)
	global.onces = make(map[string]*sync.Once)
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
