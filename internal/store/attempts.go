package store

import (
	"context"
	"fmt"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
)

var _ program.Journal = (*Store)(nil)

// RecordAttempt appends a build attempt to the journal.
// Implements program.Journal.
func (s *Store) RecordAttempt(ctx context.Context, a program.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO build_attempts (program_id, device_id, op, status, binary_type, options, log)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.ProgramID,
		string(a.Device),
		string(a.Op),
		a.Status.String(),
		a.BinaryType.String(),
		a.Options,
		a.Log,
	)
	if err != nil {
		return fmt.Errorf("record attempt %s/%s: %w", a.ProgramID, a.Device, err)
	}
	return nil
}

// ReadAttempts returns the journal of one program in recording order.
//
// Returns an empty slice (not nil) if no attempts exist.
func (s *Store) ReadAttempts(ctx context.Context, programID string) ([]program.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT program_id, device_id, op, status, binary_type, options, log
		FROM build_attempts
		WHERE program_id = ?
		ORDER BY seq ASC
	`, programID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []program.Attempt{}
	for rows.Next() {
		var (
			a                      program.Attempt
			dev, op, status, btype string
		)
		if err := rows.Scan(&a.ProgramID, &dev, &op, &status, &btype, &a.Options, &a.Log); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.Status, err = program.ParseBuildStatus(status); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.BinaryType, err = backend.ParseBinaryType(btype); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Device = device.ID(dev)
		a.Op = program.Op(op)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
