// Package projection turns committed ledger events into read models.
//
// Every event type maps to exactly one mutation kind: insert, field update or
// delete. Handlers write absolute values keyed by entity id, so applying an
// event twice leaves the same rows as applying it once. The Applier is the
// consumer.Handler of the projection runner; Rebuild replays every stream
// from seq 1 into empty tables.
package projection
