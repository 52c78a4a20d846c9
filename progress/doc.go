// Package progress keeps per-instance row counters (created, archived, failed, terminated,
// pending) updated by the driver as rows move through their states.
package progress
