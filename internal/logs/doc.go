// Package logs reads stepweave's daily log files for the logs command: the
// last N lines of a file, then optionally every line appended after them.
package logs
