package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
)

// CachedBinary is an exported binary stored under the digest of the source
// and options it was built from.
type CachedBinary struct {
	SourceDigest string
	Device       device.ID
	Backend      string
	BinaryType   backend.BinaryType
	Blob         []byte
	Seq          int64
}

// PutBinary stores b, replacing any binary with the same digest and device.
// The stored row gets the next seq.
func (s *Store) PutBinary(ctx context.Context, b CachedBinary) error {
	if len(b.Blob) == 0 {
		return fmt.Errorf("put binary %s/%s: blob is empty", b.SourceDigest, b.Device)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO binaries (source_digest, device_id, backend, binary_type, blob, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM binaries))
		ON CONFLICT(source_digest, device_id) DO UPDATE SET
			backend = excluded.backend,
			binary_type = excluded.binary_type,
			blob = excluded.blob,
			seq = excluded.seq
	`,
		b.SourceDigest,
		string(b.Device),
		b.Backend,
		b.BinaryType.String(),
		b.Blob,
	)
	if err != nil {
		return fmt.Errorf("put binary %s/%s: %w", b.SourceDigest, b.Device, err)
	}
	return nil
}

// GetBinary returns the binary for (digest, dev). found is false when none
// is stored.
func (s *Store) GetBinary(ctx context.Context, digest string, dev device.ID) (b CachedBinary, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_digest, device_id, backend, binary_type, blob, seq
		FROM binaries
		WHERE source_digest = ? AND device_id = ?
	`, digest, string(dev))

	b, err = scanBinary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedBinary{}, false, nil
	}
	if err != nil {
		return CachedBinary{}, false, fmt.Errorf("get binary %s/%s: %w", digest, dev, err)
	}
	return b, true, nil
}

// ListBinaries returns every binary stored under digest, ordered by device.
// An empty digest lists the whole cache ordered by seq.
//
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) ListBinaries(ctx context.Context, digest string) ([]CachedBinary, error) {
	query := `
		SELECT source_digest, device_id, backend, binary_type, blob, seq
		FROM binaries
		WHERE source_digest = ?
		ORDER BY device_id COLLATE BINARY ASC
	`
	args := []any{digest}
	if digest == "" {
		query = `
			SELECT source_digest, device_id, backend, binary_type, blob, seq
			FROM binaries
			ORDER BY seq ASC
		`
		args = nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query binaries: %w", err)
	}
	defer rows.Close()

	out := []CachedBinary{}
	for rows.Next() {
		b, err := scanBinary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate binaries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBinary(row scanner) (CachedBinary, error) {
	var (
		b          CachedBinary
		dev, btype string
	)
	if err := row.Scan(&b.SourceDigest, &dev, &b.Backend, &btype, &b.Blob, &b.Seq); err != nil {
		return CachedBinary{}, err
	}
	bt, err := backend.ParseBinaryType(btype)
	if err != nil {
		return CachedBinary{}, fmt.Errorf("scan binary: %w", err)
	}
	b.Device = device.ID(dev)
	b.BinaryType = bt
	return b, nil
}
