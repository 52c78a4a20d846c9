// Package idgen generates row, trace, batch and task identifiers.
// Callers treat identifiers as opaque strings.
package idgen
