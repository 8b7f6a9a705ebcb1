// Package store defines the persistence interfaces the execution core
// depends on: jobs, artifacts, rate-limit counters, and metrics. The
// durable job store is the single source of truth for resumability;
// in-memory state is never trusted across a process restart.
package store
