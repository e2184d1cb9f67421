package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// WatchStore implements domain.WatchStore using PostgreSQL.
type WatchStore struct {
	pool *pgxpool.Pool
}

// NewWatchStore creates a new WatchStore backed by the given connection pool.
func NewWatchStore(pool *pgxpool.Pool) *WatchStore {
	return &WatchStore{pool: pool}
}

const watchSelectCols = `id, owner, collection, floor_price_usd, asset_ids,
	notify_email, is_offer_accepted, matched_maker, matched_amount, receipt,
	is_notified, created_at`

func scanWatchRequest(scanner interface{ Scan(dest ...any) error }) (domain.WatchRequest, error) {
	var r domain.WatchRequest
	var receipt string

	err := scanner.Scan(
		&r.ID, &r.Owner, &r.Collection, &r.FloorPriceUsd, &r.AssetIDs,
		&r.NotifyEmail, &r.IsOfferAccepted, &r.MatchedMaker, &r.MatchedAmount,
		&receipt, &r.IsNotified, &r.CreatedAt,
	)
	if err != nil {
		return domain.WatchRequest{}, err
	}

	r.Receipt = domain.ReceiptID(receipt)
	return r, nil
}

func scanWatchRows(rows pgx.Rows) ([]domain.WatchRequest, error) {
	var reqs []domain.WatchRequest
	for rows.Next() {
		r, err := scanWatchRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// Create inserts a new watch request.
func (s *WatchStore) Create(ctx context.Context, req domain.WatchRequest) error {
	const query = `
		INSERT INTO watch_requests (
			id, owner, collection, floor_price_usd, asset_ids, notify_email,
			is_offer_accepted, matched_maker, matched_amount, receipt,
			is_notified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		req.ID, req.Owner, req.Collection, req.FloorPriceUsd, req.AssetIDs,
		req.NotifyEmail, req.IsOfferAccepted, req.MatchedMaker,
		req.MatchedAmount, string(req.Receipt), req.IsNotified, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create watch request %s: %w", req.ID, err)
	}
	return nil
}

// GetByID retrieves a single watch request.
func (s *WatchStore) GetByID(ctx context.Context, id string) (domain.WatchRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+watchSelectCols+` FROM watch_requests WHERE id = $1`, id)

	r, err := scanWatchRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WatchRequest{}, domain.ErrNotFound
		}
		return domain.WatchRequest{}, fmt.Errorf("postgres: get watch request %s: %w", id, err)
	}
	return r, nil
}

// ListPending returns all requests that have not yet accepted an offer,
// oldest first so long-waiting requests are examined before new ones.
func (s *WatchStore) ListPending(ctx context.Context) ([]domain.WatchRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+watchSelectCols+` FROM watch_requests
		 WHERE is_offer_accepted = FALSE
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending watch requests: %w", err)
	}
	defer rows.Close()

	reqs, err := scanWatchRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending watch requests: %w", err)
	}
	return reqs, nil
}

// RecordMatch flips is_offer_accepted and stores the match projection. The
// guard in the WHERE clause makes the flip a one-shot: a request that is
// already accepted is left untouched and reported as ErrAlreadyAccepted.
func (s *WatchStore) RecordMatch(ctx context.Context, id, maker string, amountUsd float64, receipt domain.ReceiptID) error {
	const query = `
		UPDATE watch_requests
		SET is_offer_accepted = TRUE,
		    matched_maker = $2,
		    matched_amount = $3,
		    receipt = $4
		WHERE id = $1 AND is_offer_accepted = FALSE`

	tag, err := s.pool.Exec(ctx, query, id, maker, amountUsd, string(receipt))
	if err != nil {
		return fmt.Errorf("postgres: record match for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already settled" from "no such request".
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM watch_requests WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: record match for %s: %w", id, err)
		}
		if exists {
			return domain.ErrAlreadyAccepted
		}
		return domain.ErrNotFound
	}
	return nil
}

// MarkNotified records that the owner was told about the settlement.
func (s *WatchStore) MarkNotified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watch_requests SET is_notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark notified %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListUnnotified returns accepted requests still awaiting owner
// notification, oldest first.
func (s *WatchStore) ListUnnotified(ctx context.Context) ([]domain.WatchRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+watchSelectCols+` FROM watch_requests
		 WHERE is_offer_accepted = TRUE AND is_notified = FALSE
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unnotified watch requests: %w", err)
	}
	defer rows.Close()

	reqs, err := scanWatchRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unnotified watch requests: %w", err)
	}
	return reqs, nil
}

// ListSettled returns accepted-and-notified requests created before the
// cutoff, oldest first, for cold-storage export.
func (s *WatchStore) ListSettled(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.WatchRequest, error) {
	query := `SELECT ` + watchSelectCols + ` FROM watch_requests
		 WHERE is_offer_accepted = TRUE AND is_notified = TRUE AND created_at < $1
		 ORDER BY created_at ASC`
	args := []any{before}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled watch requests: %w", err)
	}
	defer rows.Close()

	reqs, err := scanWatchRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled watch requests: %w", err)
	}
	return reqs, nil
}

var _ domain.WatchStore = (*WatchStore)(nil)
