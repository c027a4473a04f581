// Package config loads, normalizes, and validates stepweave configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY. Thresholds for clustering and localisation, the
// embedding backend, and the generation endpoint are all discovered here in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
