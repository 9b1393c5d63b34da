package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id                        TEXT PRIMARY KEY,
	owner_id                  TEXT NOT NULL,
	title                     TEXT NOT NULL DEFAULT '',
	status                    TEXT NOT NULL,
	starting_bid              NUMERIC(20,2) NOT NULL,
	current_highest_bid       NUMERIC(20,2) NOT NULL,
	current_highest_bidder_id TEXT,
	total_bids                BIGINT NOT NULL DEFAULT 0,
	total_bidders             BIGINT NOT NULL DEFAULT 0,
	bidding_starts_at         TIMESTAMPTZ NOT NULL,
	bidding_ends_at           TIMESTAMPTZ NOT NULL,
	bid_increment             NUMERIC(20,2) NOT NULL,
	auto_extend               BOOLEAN NOT NULL DEFAULT FALSE,
	extension_window_seconds  BIGINT NOT NULL DEFAULT 0,
	max_extensions            BIGINT NOT NULL DEFAULT 0,
	extensions_used           BIGINT NOT NULL DEFAULT 0,
	winner_id                 TEXT,
	final_amount              NUMERIC(20,2),
	version                   BIGINT NOT NULL DEFAULT 0,
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS auctions_status_idx ON auctions (status);
CREATE TABLE IF NOT EXISTS bids (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	auction_id TEXT NOT NULL REFERENCES auctions (id),
	bidder_id  TEXT NOT NULL,
	amount     NUMERIC(20,2) NOT NULL,
	placed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS bids_auction_bidder_idx ON bids (auction_id, bidder_id);
`

var auctionColumns = []string{
	"id", "owner_id", "title", "status",
	"starting_bid::text", "current_highest_bid::text", "current_highest_bidder_id",
	"total_bids", "total_bidders", "bidding_starts_at", "bidding_ends_at",
	"bid_increment::text", "auto_extend", "extension_window_seconds",
	"max_extensions", "extensions_used", "winner_id", "final_amount::text",
	"version", "created_at", "updated_at",
}

// PostgresRepo is the durable AuctionDB backed by a pgx connection pool
type PostgresRepo struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

// NewPostgresRepo opens a pool against dsn and verifies connectivity
func NewPostgresRepo(ctx context.Context, dsn string, maxConns int32) (*PostgresRepo, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w: %v", biddingerrors.ErrStoreUnavailable, err)
	}

	return &PostgresRepo{
		pool: pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// EnsureSchema creates the auction tables if they do not exist
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool
func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a models.Auction) error {
	query, args, err := r.sb.
		Insert("auctions").
		Columns(
			"id", "owner_id", "title", "status",
			"starting_bid", "current_highest_bid", "current_highest_bidder_id",
			"total_bids", "total_bidders", "bidding_starts_at", "bidding_ends_at",
			"bid_increment", "auto_extend", "extension_window_seconds",
			"max_extensions", "extensions_used", "winner_id", "final_amount",
			"version", "created_at", "updated_at",
		).
		Values(
			a.AuctionID, a.OwnerID, a.Title, string(a.Status),
			a.StartingBid.String(), a.CurrentHighestBid.String(), a.CurrentHighestBidderID,
			a.TotalBids, a.TotalBidders, a.BiddingStartsAt, a.BiddingEndsAt,
			a.BidIncrement.String(), a.AutoExtend, a.ExtensionWindowSeconds,
			a.MaxExtensions, a.ExtensionsUsed, a.WinnerID, decimalPtrArg(a.FinalAmount),
			a.Version, a.CreatedAt, a.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert auction: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionExists)
		}
		return storeErr("create auction "+a.AuctionID, err)
	}
	return nil
}

// GetAuction reads the committed auction row
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	return r.getAuction(ctx, r.pool, auctionID, false)
}

func (r *PostgresRepo) getAuction(ctx context.Context, q querier, auctionID string, forUpdate bool) (models.Auction, error) {
	b := r.sb.Select(auctionColumns...).From("auctions").Where(squirrel.Eq{"id": auctionID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return models.Auction{}, fmt.Errorf("build select auction: %w", err)
	}

	a, err := scanAuction(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return models.Auction{}, storeErr("get auction "+auctionID, err)
	}
	return a, nil
}

// ListAuctionsByStatus returns every auction currently in status, ordered by ID
func (r *PostgresRepo) ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	query, args, err := r.sb.
		Select(auctionColumns...).
		From("auctions").
		Where(squirrel.Eq{"status": string(status)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list auctions: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list auctions", err)
	}
	defer rows.Close()

	var out []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, storeErr("scan auction", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list auctions", err)
	}
	return out, nil
}

// GetBidsByAuction returns the bid log of an auction in commit order
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	query, args, err := r.sb.
		Select("id", "auction_id", "bidder_id", "amount::text", "placed_at").
		From("bids").
		Where(squirrel.Eq{"auction_id": auctionID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select bids: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("get bids for auction "+auctionID, err)
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		var (
			b      models.Bid
			amount string
		)
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &amount, &b.PlacedAt); err != nil {
			return nil, storeErr("scan bid", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse bid amount %q: %w", amount, err)
		}
		b.PlacedAt = b.PlacedAt.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get bids for auction "+auctionID, err)
	}
	return out, nil
}

// RunInTx opens a read-committed transaction, hands it to fn and commits
// when fn succeeds. Any error rolls back everything fn wrote.
func (r *PostgresRepo) RunInTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	pgTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&pgTxView{repo: r, tx: pgTx, auctionID: auctionID}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return storeErr("commit tx", err)
	}
	return nil
}

type pgTxView struct {
	repo      *PostgresRepo
	tx        pgx.Tx
	auctionID string
}

func (v *pgTxView) LockAuction(ctx context.Context) (models.Auction, error) {
	return v.repo.getAuction(ctx, v.tx, v.auctionID, true)
}

func (v *pgTxView) HasBidder(ctx context.Context, bidderID string) (bool, error) {
	query, args, err := v.repo.sb.
		Select("1").
		From("bids").
		Where(squirrel.Eq{"auction_id": v.auctionID, "bidder_id": bidderID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build bidder lookup: %w", err)
	}

	var one int
	if err := v.tx.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, storeErr("bidder lookup", err)
	}
	return true, nil
}

func (v *pgTxView) UpdateAuction(ctx context.Context, a models.Auction, expectedVersion int64) error {
	if a.AuctionID != v.auctionID {
		return fmt.Errorf("update auction %s in tx for %s: %w", a.AuctionID, v.auctionID, biddingerrors.ErrInvalidAuction)
	}
	query, args, err := v.repo.sb.
		Update("auctions").
		SetMap(map[string]any{
			"title":                     a.Title,
			"status":                    string(a.Status),
			"current_highest_bid":       a.CurrentHighestBid.String(),
			"current_highest_bidder_id": a.CurrentHighestBidderID,
			"total_bids":                a.TotalBids,
			"total_bidders":             a.TotalBidders,
			"bidding_starts_at":         a.BiddingStartsAt,
			"bidding_ends_at":           a.BiddingEndsAt,
			"extensions_used":           a.ExtensionsUsed,
			"winner_id":                 a.WinnerID,
			"final_amount":              decimalPtrArg(a.FinalAmount),
			"version":                   a.Version,
			"updated_at":                a.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": a.AuctionID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update auction: %w", err)
	}

	tag, err := v.tx.Exec(ctx, query, args...)
	if err != nil {
		return storeErr("update auction "+a.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update auction %s at version %d: %w", a.AuctionID, expectedVersion, biddingerrors.ErrVersionConflict)
	}
	return nil
}

func (v *pgTxView) AppendBid(ctx context.Context, b models.Bid) error {
	if b.AuctionID != v.auctionID {
		return fmt.Errorf("append bid for auction %s in tx for %s: %w", b.AuctionID, v.auctionID, biddingerrors.ErrInvalidBid)
	}
	query, args, err := v.repo.sb.
		Insert("bids").
		Columns("id", "auction_id", "bidder_id", "amount", "placed_at").
		Values(b.BidID, b.AuctionID, b.BidderID, b.Amount.String(), b.PlacedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert bid: %w", err)
	}
	if _, err := v.tx.Exec(ctx, query, args...); err != nil {
		return storeErr("append bid "+b.BidID, err)
	}
	return nil
}

func scanAuction(row pgx.Row) (models.Auction, error) {
	var (
		a                                 models.Auction
		status                            string
		starting, current, increment      string
		final                             *string
		startsAt, endsAt, created, update time.Time
	)
	err := row.Scan(
		&a.AuctionID, &a.OwnerID, &a.Title, &status,
		&starting, &current, &a.CurrentHighestBidderID,
		&a.TotalBids, &a.TotalBidders, &startsAt, &endsAt,
		&increment, &a.AutoExtend, &a.ExtensionWindowSeconds,
		&a.MaxExtensions, &a.ExtensionsUsed, &a.WinnerID, &final,
		&a.Version, &created, &update,
	)
	if err != nil {
		return models.Auction{}, err
	}

	a.Status = models.AuctionStatus(status)
	a.BiddingStartsAt, a.BiddingEndsAt = startsAt.UTC(), endsAt.UTC()
	a.CreatedAt, a.UpdatedAt = created.UTC(), update.UTC()
	for _, f := range []struct {
		src string
		dst *decimal.Decimal
	}{{starting, &a.StartingBid}, {current, &a.CurrentHighestBid}, {increment, &a.BidIncrement}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return models.Auction{}, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
	}
	if final != nil {
		d, err := decimal.NewFromString(*final)
		if err != nil {
			return models.Auction{}, fmt.Errorf("parse final amount %q: %w", *final, err)
		}
		a.FinalAmount = &d
	}
	return a, nil
}

func decimalPtrArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// storeErr tags driver failures as ErrStoreUnavailable while keeping the
// original cause in the message. Serialization failures and deadlocks lost
// a race with another writer and become ErrVersionConflict so the caller
// re-runs the whole transaction.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected) {
		return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrVersionConflict, err)
	}
	return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrStoreUnavailable, err)
}
