package fingerprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/models"
)

// Get returns the record for key, or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, key string) (*models.Fingerprint, error) {
	var fp models.Fingerprint
	err := db.conn.QueryRowContext(ctx,
		`SELECT key, command_hash, updated_at FROM fingerprints WHERE key = ?`, key,
	).Scan(&fp.Key, &fp.CommandHash, &fp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint: get %s: %w", key, err)
	}
	return &fp, nil
}

// Unchanged implements Store.
func (db *DB) Unchanged(ctx context.Context, target, command string) (bool, error) {
	fp, err := db.Get(ctx, Key(target))
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fp.CommandHash == Hash(command), nil
}

// Record implements Store. The write is committed before it returns, so a
// crash after a successful step never loses its fingerprint.
func (db *DB) Record(ctx context.Context, target, command string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO fingerprints (key, command_hash, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			command_hash = excluded.command_hash,
			updated_at   = excluded.updated_at
	`, Key(target), Hash(command), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fingerprint: record %s: %w", target, err)
	}
	return nil
}

// List implements Store.
func (db *DB) List(ctx context.Context) ([]models.Fingerprint, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, command_hash, updated_at FROM fingerprints ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: list: %w", err)
	}
	defer rows.Close()

	var out []models.Fingerprint
	for rows.Next() {
		var fp models.Fingerprint
		if err := rows.Scan(&fp.Key, &fp.CommandHash, &fp.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// Forget implements Store.
func (db *DB) Forget(ctx context.Context, key string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM fingerprints WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("fingerprint: forget %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
