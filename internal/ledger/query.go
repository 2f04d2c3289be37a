package ledger

import (
	"context"

	dErrors "riftgate/pkg/domain-errors"
)

// defaultBatchSize bounds how many records a cursor pulls per store read.
const defaultBatchSize = 128

// Cursor is a lazy, restartable, read-only iterator over a contiguous record
// range. Records are fetched in batches; the cursor never mutates the chain.
type Cursor struct {
	store  Store
	from   uint64
	to     uint64
	filter Filter

	next  uint64
	batch []Record
	pos   int
}

// Query opens a cursor over from <= sequence < to, optionally filtered.
func (l *Ledger) Query(from, to uint64, filter Filter) *Cursor {
	return &Cursor{
		store:  l.store,
		from:   from,
		to:     to,
		filter: filter,
		next:   from,
	}
}

// Next returns the next matching record, or nil when the range is exhausted.
// Storage unavailability surfaces as an unavailable error; the cursor can be
// retried or Reset afterwards.
func (c *Cursor) Next(ctx context.Context) (*Record, error) {
	for {
		if c.pos < len(c.batch) {
			rec := c.batch[c.pos]
			c.pos++
			if c.filter == nil || c.filter(rec) {
				return &rec, nil
			}
			continue
		}

		if c.next >= c.to {
			return nil, nil
		}

		end := c.next + defaultBatchSize
		if end > c.to {
			end = c.to
		}
		batch, err := c.store.Range(ctx, c.next, end)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger query read failed")
		}
		c.batch = batch
		c.pos = 0
		c.next = end

		if len(batch) == 0 && c.next >= c.to {
			return nil, nil
		}
	}
}

// Reset restarts the cursor at the beginning of its range.
func (c *Cursor) Reset() {
	c.next = c.from
	c.batch = nil
	c.pos = 0
}

// Collect drains the cursor into a slice. Convenience for handlers and tests.
func (c *Cursor) Collect(ctx context.Context) ([]Record, error) {
	var out []Record
	for {
		rec, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return out, nil
		}
		out = append(out, *rec)
	}
}
