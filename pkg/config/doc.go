// Package config loads environment-tagged configuration structs for the
// notification engine.
//
// Each package declares its own config struct with `env` tags; this
// package parses them after a best-effort .env load:
//
//	var cfg storage.PostgresConfig
//	if err := config.Load(&cfg); err != nil {
//	    // missing required variables, type mismatches, ...
//	}
package config
