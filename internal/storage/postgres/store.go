// Package postgres implements campaign.Store on PostgreSQL via sqlx.
// Per-campaign serialization of purchase and admin operations comes from
// SELECT ... FOR UPDATE on the campaign row; claim double-spend protection is
// a conditional UPDATE on the receipt row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/model"
)

// pgUniqueViolation is the PostgreSQL error code for duplicate keys.
const pgUniqueViolation = "23505"

// Store is the production campaign.Store.
type Store struct {
	db *sqlx.DB
}

var _ campaign.Store = (*Store)(nil)

// NewStore creates a store over an open connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetCampaign implements campaign.Store.
func (s *Store) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return getCampaign(ctx, s.db, id, false)
}

// GetReceipt implements campaign.Store.
func (s *Store) GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error) {
	return getReceipt(ctx, s.db, campaignID, packIndex)
}

// VaultBalance implements campaign.Store.
func (s *Store) VaultBalance(ctx context.Context, campaignID string) (uint64, error) {
	return vaultBalance(ctx, s.db, campaignID)
}

// WithinCampaignTx implements campaign.Store. The campaignID argument is not
// needed here: scoping comes from the rows fn locks inside the transaction.
func (s *Store) WithinCampaignTx(ctx context.Context, campaignID string, fn func(campaign.Tx) error) error {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbtx.Rollback()

	if err := fn(&Tx{tx: dbtx}); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryer covers *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func getCampaign(ctx context.Context, q queryer, id string, forUpdate bool) (*model.Campaign, error) {
	query := `
		SELECT id, seed, authority, reward_asset, merkle_root, pack_price,
		       total_packs, packs_sold, is_active, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var c model.Campaign
	if err := q.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, campaign.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func getReceipt(ctx context.Context, q queryer, campaignID string, packIndex uint32) (*model.Receipt, error) {
	query := `
		SELECT id, campaign_id, buyer, pack_index, is_claimed, payment_amount,
		       created_at, claimed_at
		FROM receipts
		WHERE campaign_id = $1 AND pack_index = $2
	`

	var r model.Receipt
	if err := q.GetContext(ctx, &r, query, campaignID, packIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, campaign.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &r, nil
}

func vaultBalance(ctx context.Context, q queryer, campaignID string) (uint64, error) {
	query := `SELECT balance FROM vaults WHERE campaign_id = $1`

	var balance uint64
	if err := q.GetContext(ctx, &balance, query, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, campaign.ErrCampaignNotFound
		}
		return 0, fmt.Errorf("get vault balance: %w", err)
	}
	return balance, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}
