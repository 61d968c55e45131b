// Package config loads, normalizes, and validates mediaconv configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// PORT, MEDIACONV_OUTPUT_DIR, DATABASE_URL, and REDIS_ADDR so the service can
// run on hosting platforms that only configure processes through the
// environment.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, positive intervals, and clear validation errors.
package config
