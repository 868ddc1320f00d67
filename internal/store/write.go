package store

import (
	"context"
	"fmt"

	"github.com/roach88/oakvm/internal/ir"
)

// WriteClassEvent inserts a class publication record.
// A second event for the same (loader_id, klass_id) is silently ignored, so
// replaying a journal into the store is idempotent.
func (s *Store) WriteClassEvent(ctx context.Context, ev ir.ClassEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_events
		(seq, klass_id, name, kind, loader, loader_id, super, dimension, null_free, layout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Seq,
		int64(ev.KlassID),
		ev.Name,
		ev.Kind,
		ev.Loader,
		ev.LoaderID,
		ev.Super,
		ev.Dimension,
		ev.NullFree,
		ev.Layout,
	)
	if err != nil {
		return fmt.Errorf("write class event %s: %w", ev.Name, err)
	}
	return nil
}

// WriteAttachRecord inserts an attach operation record. Args are stored as
// canonical JSON. Duplicate IDs are silently ignored.
func (s *Store) WriteAttachRecord(ctx context.Context, rec ir.AttachRecord) error {
	args := rec.Args
	if args == nil {
		args = []string{}
	}
	argsJSON, err := ir.MarshalCanonical(args)
	if err != nil {
		return fmt.Errorf("write attach record: marshal args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attach_operations
		(id, seq, command, args, pipe, code, output_bytes, duration_micros)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		rec.Command,
		string(argsJSON),
		rec.Pipe,
		rec.Code,
		rec.OutputBytes,
		rec.DurationMicros,
	)
	if err != nil {
		return fmt.Errorf("write attach record %s: %w", rec.ID, err)
	}
	return nil
}
