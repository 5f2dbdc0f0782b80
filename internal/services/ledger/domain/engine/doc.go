// Package engine executes ledger commands: it replays the aggregates a
// command touches, runs the business operation and appends the resulting
// events with optimistic concurrency.
//
// Commands that change both a transaction and its investment commit both
// streams in one atomic batch. Cancellation is honored up to the append;
// once the store accepts the events the command is durable.
package engine
