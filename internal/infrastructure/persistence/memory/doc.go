// Package memory provides in-process repositories with the same uniqueness
// and compare-and-swap semantics as the PostgreSQL store. They back tests and
// the "memory" storage driver used for local development.
package memory
