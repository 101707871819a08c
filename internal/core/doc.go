// Package core provides the business logic for streaming CSV ingestion.
//
// This package contains all domain logic independent of any transport layer.
// It can be driven by web handlers, CLI tools, or tests without modification.
//
// # Dataset Registry
//
// Datasets describe ingestable data shapes and are registered at startup via
// [Register], typically from a JSON definitions file via [LoadDatasets]. Each
// [Dataset] names its expected columns and per-field validation rules.
//
// # Streaming Ingest
//
// Ingests process data incrementally with bounded memory regardless of file
// size. The flow is:
//
//  1. Client calls [Service.StartIngest] with an io.Reader
//  2. Service wraps the reader with UTF-8 sanitization (and BOM skipping for
//     headerless datasets), then pumps fragments into the parser
//  3. Accepted rows are written to the [Store] in batches; rows rejected by
//     validation are kept aside for the failed-row export
//  4. Progress is broadcast to subscribers via [Service.SubscribeProgress]
//
// # Concurrency Limiting
//
// A semaphore-based [IngestLimiter] caps parallel ingests and supports
// graceful shutdown through [IngestLimiter.WaitForDrain].
package core
