package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/corefin/payrun/internal/lifecycle"
)

// Check looks up a cached response for (key, endpoint, requestHash).
// A row that exists under the key and endpoint but with a different
// request hash is not a hit: the caller reused the key for a new
// request and the operation must execute.
func (s *Store) Check(ctx context.Context, key, endpoint, requestHash string) (*lifecycle.CachedResponse, error) {
	var resp lifecycle.CachedResponse
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, status_code, body FROM idempotency
		WHERE key = ? AND endpoint = ? AND request_hash = ?
	`, key, endpoint, requestHash).Scan(&resp.RunID, &resp.StatusCode, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	resp.Body = []byte(body)
	return &resp, nil
}

// Store saves a response under (key, endpoint). A reused key replaces
// the previous entry, so only the latest request hash replays.
func (s *Store) Store(ctx context.Context, key, endpoint, requestHash string, resp lifecycle.CachedResponse) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency (key, endpoint, request_hash, run_id, status_code, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key, endpoint) DO UPDATE SET
			request_hash = excluded.request_hash,
			run_id = excluded.run_id,
			status_code = excluded.status_code,
			body = excluded.body,
			created_at = excluded.created_at
	`, key, endpoint, requestHash, resp.RunID, resp.StatusCode, string(resp.Body),
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}
