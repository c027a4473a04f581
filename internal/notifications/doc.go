// Package notifications publishes run outcomes to ntfy.
//
// With no topic configured NewService returns a no-op, so callers notify
// unconditionally.
package notifications
