// Package config handles configuration loading and validation from a
// config.yaml file and REELGEN_-prefixed environment variables. It gives
// the rest of the application type-safe access to server, database,
// execution, provider, and storage settings.
package config
