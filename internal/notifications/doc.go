// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-event toggles ([notifications] clip_ready, dead_letter,
// sync_errors) suppress the noisier events without touching callers, which
// depend only on the Service interface.
package notifications
