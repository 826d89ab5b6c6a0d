// Package config loads, normalizes, and validates sketchreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SKETCHREEL_REMOTE and the GDRIVE_* credentials. Local directories that are
// left blank derive from paths.data_dir, so the classic data/input and
// data/output layout needs no configuration at all.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
