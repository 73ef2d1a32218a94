// Package pg manages the PostgreSQL connection pool behind the durable
// stores: the job queue tables and the notifications table.
//
// Connect builds a pgxpool with retry logic for reliable startup; Migrate
// applies the goose migrations shipped under migrations/ (jobs, dead_jobs,
// notifications); Healthcheck wraps the pool for liveness probes. Config is
// populated from environment variables via pkg/config.
package pg
