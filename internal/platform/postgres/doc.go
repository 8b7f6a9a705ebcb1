// Package postgres implements the store interfaces against PostgreSQL
// using database/sql with the pgx driver. All implementations accept a
// store.DBTX so they work identically inside and outside transactions.
package postgres
