// Package config loads typed configuration from environment variables.
//
// It combines godotenv for .env files with caarlos0/env for struct parsing.
// Each configuration type is parsed at most once per process and served from
// a cache on subsequent loads, so components can each call Load for their own
// config struct without coordinating.
//
//	type QueueConfig struct {
//	    PullInterval time.Duration `env:"QUEUE_PULL_INTERVAL" envDefault:"1s"`
//	}
//
//	var cfg QueueConfig
//	if err := config.Load(&cfg); err != nil { ... }
//
// ResetCache exists for tests that mutate the process environment.
package config
