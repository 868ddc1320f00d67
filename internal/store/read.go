package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/oakvm/internal/ir"
)

// ClassFilter narrows ReadClassEvents. Zero fields match everything.
type ClassFilter struct {
	Name   string
	Loader string
	Kind   string
}

// ReadClassEvents returns class events in seq order.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadClassEvents(ctx context.Context, f ClassFilter) ([]ir.ClassEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, klass_id, name, kind, loader, loader_id, super, dimension, null_free, layout
		FROM class_events
		WHERE (? = '' OR name = ?)
		  AND (? = '' OR loader = ?)
		  AND (? = '' OR kind = ?)
		ORDER BY seq ASC
	`, f.Name, f.Name, f.Loader, f.Loader, f.Kind, f.Kind)
	if err != nil {
		return nil, fmt.Errorf("query class events: %w", err)
	}
	defer rows.Close()

	events := []ir.ClassEvent{}
	for rows.Next() {
		ev, err := scanClassEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate class events: %w", err)
	}
	return events, nil
}

// ReadAttachRecords returns attach records in seq order, optionally limited
// to one command. Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadAttachRecords(ctx context.Context, command string) ([]ir.AttachRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, command, args, pipe, code, output_bytes, duration_micros
		FROM attach_operations
		WHERE (? = '' OR command = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, command, command)
	if err != nil {
		return nil, fmt.Errorf("query attach records: %w", err)
	}
	defer rows.Close()

	records := []ir.AttachRecord{}
	for rows.Next() {
		rec, err := scanAttachRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attach records: %w", err)
	}
	return records, nil
}

// ReadAttachRecord retrieves a single attach record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadAttachRecord(ctx context.Context, id string) (ir.AttachRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, command, args, pipe, code, output_bytes, duration_micros
		FROM attach_operations
		WHERE id = ?
	`, id)
	return scanAttachRecord(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClassEvent(sc scanner) (ir.ClassEvent, error) {
	var (
		ev      ir.ClassEvent
		klassID int64
	)
	err := sc.Scan(&ev.Seq, &klassID, &ev.Name, &ev.Kind, &ev.Loader, &ev.LoaderID,
		&ev.Super, &ev.Dimension, &ev.NullFree, &ev.Layout)
	if err != nil {
		return ir.ClassEvent{}, fmt.Errorf("scan class event: %w", err)
	}
	ev.KlassID = uint64(klassID)
	return ev, nil
}

func scanAttachRecord(sc scanner) (ir.AttachRecord, error) {
	var (
		rec      ir.AttachRecord
		argsJSON string
	)
	err := sc.Scan(&rec.ID, &rec.Seq, &rec.Command, &argsJSON, &rec.Pipe,
		&rec.Code, &rec.OutputBytes, &rec.DurationMicros)
	if err == sql.ErrNoRows {
		return ir.AttachRecord{}, err
	}
	if err != nil {
		return ir.AttachRecord{}, fmt.Errorf("scan attach record: %w", err)
	}
	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return ir.AttachRecord{}, fmt.Errorf("unmarshal attach args: %w", err)
	}
	return rec, nil
}
