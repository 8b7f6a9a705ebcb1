// Package api implements the operator-facing HTTP handlers: job intake,
// queue inspection, batch execution, and export. All endpoints require an
// operator token; errors leaving this package are mapped to safe messages
// so internal details never reach a client.
package api
