// Package engine defines the document storage engine that backs every tenant type.
//
// # Addressing
//
// Each (tenant, type) pair lives in a physical index named
// {tenant}-{type}-{schemaVersion} and is always reached through the stable alias
// {tenant}-{type}. Creating a new backing index and moving the alias migrates
// a type without changing its logical address.
//
// # Concurrency
//
// Every document carries a version starting at 1 and bumped on each write.
// Index with WriteOptions.Version set is a compare-and-swap: of two writers
// presenting the same version exactly one succeeds and the other receives
// ErrVersionConflict.
//
// # Implementations
//
//	engine/memory    - in-process engine, used by tests and single node setups
//	engine/sqlstore  - database/sql engine with postgres and sqlite3 dialects
//
// Instrument wraps any Engine with per-call timeouts, Prometheus metrics and
// OpenTelemetry spans.
package engine
