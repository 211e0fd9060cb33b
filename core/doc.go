// Package core defines the domain model and storage contracts for Argus.
//
// The core package provides:
//   - Domain types (Event, Alert) shared by ingestion, detection and storage
//   - The Event Store query contract consumed by detectors (query.go)
//   - Storage interfaces implemented by the storage package (services.go)
//   - Pattern sets shared between the normalizer and detectors
//
// Interfaces are defined here, on the consumer side, and implemented by
// concrete types in the storage package. Detectors accept interfaces and
// storage returns concrete types.
package core
