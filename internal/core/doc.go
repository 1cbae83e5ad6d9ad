// Package core implements the sheet transformation pipeline.
//
// The package holds all domain logic independent of any UI or transport
// layer. It can be used by web handlers, the CLI, or tests without
// modification.
//
// # Stages
//
// Each stage is a function over a [store.Store] and can be called directly:
//
//   - [NormalizeHeader]: capitalizes every word of the header row
//   - [RemapColumns]: copies a source table into a destination table
//     through a fixed column mapping
//   - [SortByGroup]: groups rows by the key in column A, sorted ascending
//   - [SortAndSeparate]: like SortByGroup with a blank row between groups,
//     stopping at the first two consecutive blank rows
//   - [FillMarkers]: writes the marker "x" into blank cells of a column
//   - [ResolveSubtotals]: replaces each marker with the running sum above it
//
// [ImportCSV], [ExportCSV] and [SummarizeColumn] move data in and out and
// describe a column without changing it.
//
// # Service
//
// [Service] wraps the stages for the web and CLI surfaces. It serializes
// runs through a [RunLimiter], records every run in a [History] with a
// checksum of the table it changed, updates Prometheus metrics and turns
// results into operator [Notice] values. [Service.RunPipeline] runs remap,
// separate, fill and resolve in order and stops at the first failure.
//
// # Error Handling
//
// Stage failures are [*StageError] values wrapping one kind from this
// package, so callers use errors.Is. [MapError] turns any error into a
// [UserMessage] with a support code:
//
//   - TBL001-TBL002: table errors
//   - DATA001, WRT001, ARG001: stage errors
//   - RUN001-RUN003: run slot, cancellation and timeout
//   - CSV001-CSV002: import errors
//   - DB001: database connectivity
//
// Stages are not transactional: a failure while writing can leave a table
// partially written, and running the pipeline twice is not a no-op.
package core
