//go:build !spanindex_debug

package query

// Checks enables the consistency checker on every batch query.
const Checks = false
