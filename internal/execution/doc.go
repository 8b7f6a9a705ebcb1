// Package execution contains the durable queue executor: rate limiting,
// retry with classification-driven backoff, adaptive status polling,
// verified artifact download, and the concurrent job executor that ties
// them together. All state transitions it makes are persisted before the
// next step begins, so an interrupted run can resume without re-doing or
// losing work.
package execution
