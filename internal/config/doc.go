// Package config loads, normalizes, and validates crdl configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CRDL_USERNAME and CRDL_PASSWORD. The Config type also hands the API identity,
// locale triple and refresh policy to the Crunchyroll client so call sites
// never assemble them by hand.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical locale tags, and clear validation errors.
package config
