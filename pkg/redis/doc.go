// Package redis connects the process to the Redis server backing the event
// bus transport.
//
// Connect retries per the supplied Config and returns a ready go-redis
// client; Healthcheck wraps the client for liveness probes. Config fields
// are populated from environment variables via pkg/config.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	client, err := redis.Connect(ctx, cfg)
package redis
