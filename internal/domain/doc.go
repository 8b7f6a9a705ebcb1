// Package domain defines the core business entities of the video generation
// pipeline: jobs, downloaded artifacts, rate-limit counters, per-transition
// metrics, and the batch execution report.
package domain
