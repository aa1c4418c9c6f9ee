package instrument

import (
	"context"
	"fmt"
	"iter"

	"i4.energy/across/scpictl/scpi"
)

// Querier sends one query and returns the raw response message.
type Querier interface {
	QueryRaw(ctx context.Context, cmd scpi.Command) ([]byte, error)
}

// ErrorQueue reads the SCPI error/event queue of an instrument.
type ErrorQueue struct {
	Querier Querier
	// Query defaults to :SYSTem:ERRor?.
	Query scpi.Command
	// Limit caps the number of queries per drain. Defaults to
	// DefaultErrorQueueLimit.
	Limit int
}

// All returns the queued entries lazily, oldest first, by querying one
// entry at a time until the instrument reports "No error". After Limit
// entries without that sentinel it yields ErrErrorQueueOverflow and stops.
//
// Every call reads live instrument state; entries consumed by one call are
// gone for the next.
func (q ErrorQueue) All(ctx context.Context) iter.Seq2[scpi.ErrorEntry, error] {
	query := q.Query
	if query.Path.Len() == 0 {
		query = scpi.MustCommand(scpi.CmdSystemErrorQ)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultErrorQueueLimit
	}

	return func(yield func(scpi.ErrorEntry, error) bool) {
		for range limit {
			raw, err := q.Querier.QueryRaw(ctx, query)
			if err != nil {
				yield(scpi.ErrorEntry{}, err)
				return
			}
			entry, err := scpi.ParseErrorEntry(raw)
			if err != nil {
				yield(scpi.ErrorEntry{}, fmt.Errorf("error queue entry: %w", err))
				return
			}
			if entry.IsNoError() {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		yield(scpi.ErrorEntry{}, fmt.Errorf("%w after %d entries", ErrErrorQueueOverflow, limit))
	}
}

// Drain collects All. On failure the entries read so far are returned with
// the error.
func (q ErrorQueue) Drain(ctx context.Context) ([]scpi.ErrorEntry, error) {
	var entries []scpi.ErrorEntry
	for entry, err := range q.All(ctx) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Errors is ErrorQueue.All with the standard query.
func Errors(ctx context.Context, q Querier, limit int) iter.Seq2[scpi.ErrorEntry, error] {
	return ErrorQueue{Querier: q, Limit: limit}.All(ctx)
}

// DrainErrors is ErrorQueue.Drain with the standard query.
func DrainErrors(ctx context.Context, q Querier, limit int) ([]scpi.ErrorEntry, error) {
	return ErrorQueue{Querier: q, Limit: limit}.Drain(ctx)
}
