package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/model"
)

// Tx runs the mutation surface inside one database transaction.
type Tx struct {
	tx *sqlx.Tx
}

var _ campaign.Tx = (*Tx)(nil)

func (t *Tx) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	query := `
		INSERT INTO campaigns (id, seed, authority, reward_asset, merkle_root,
		                       pack_price, total_packs, packs_sold, is_active,
		                       created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := t.tx.ExecContext(ctx, query,
		c.ID, c.Seed, c.Authority, c.RewardAsset, c.MerkleRoot,
		c.PackPrice, c.TotalPacks, c.PacksSold, c.IsActive,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return campaign.ErrCampaignExists
		}
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (t *Tx) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return getCampaign(ctx, t.tx, id, false)
}

func (t *Tx) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	return getCampaign(ctx, t.tx, id, true)
}

func (t *Tx) SetPacksSold(ctx context.Context, id string, sold uint32) error {
	query := `UPDATE campaigns SET packs_sold = $1, updated_at = $2 WHERE id = $3`

	if _, err := t.tx.ExecContext(ctx, query, sold, time.Now(), id); err != nil {
		return fmt.Errorf("update packs sold: %w", err)
	}
	return nil
}

func (t *Tx) SetInactive(ctx context.Context, id string) error {
	query := `UPDATE campaigns SET is_active = FALSE, updated_at = $1 WHERE id = $2`

	if _, err := t.tx.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("deactivate campaign: %w", err)
	}
	return nil
}

func (t *Tx) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	query := `
		INSERT INTO receipts (id, campaign_id, buyer, pack_index, is_claimed,
		                      payment_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.tx.ExecContext(ctx, query,
		r.ID, r.CampaignID, r.Buyer, r.PackIndex, r.IsClaimed,
		r.PaymentAmount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

func (t *Tx) GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error) {
	return getReceipt(ctx, t.tx, campaignID, packIndex)
}

func (t *Tx) ClaimReceipt(ctx context.Context, campaignID string, packIndex uint32) (bool, error) {
	query := `
		UPDATE receipts
		SET is_claimed = TRUE, claimed_at = $1
		WHERE campaign_id = $2 AND pack_index = $3 AND is_claimed = FALSE
	`

	result, err := t.tx.ExecContext(ctx, query, time.Now(), campaignID, packIndex)
	if err != nil {
		return false, fmt.Errorf("claim receipt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim receipt rows affected: %w", err)
	}
	return rows > 0, nil
}

func (t *Tx) CreateVault(ctx context.Context, campaignID string) error {
	query := `INSERT INTO vaults (campaign_id, balance) VALUES ($1, 0)`

	if _, err := t.tx.ExecContext(ctx, query, campaignID); err != nil {
		if isUniqueViolation(err) {
			return campaign.ErrCampaignExists
		}
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}

func (t *Tx) VaultBalance(ctx context.Context, campaignID string) (uint64, error) {
	return vaultBalance(ctx, t.tx, campaignID)
}

func (t *Tx) CreditVault(ctx context.Context, campaignID string, amount uint64) error {
	query := `UPDATE vaults SET balance = balance + $1 WHERE campaign_id = $2`

	result, err := t.tx.ExecContext(ctx, query, amount, campaignID)
	if err != nil {
		return fmt.Errorf("credit vault: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit vault rows affected: %w", err)
	}
	if rows == 0 {
		return campaign.ErrCampaignNotFound
	}
	return nil
}

func (t *Tx) DebitVault(ctx context.Context, campaignID string, amount uint64) (bool, error) {
	query := `
		UPDATE vaults
		SET balance = balance - $1
		WHERE campaign_id = $2 AND balance >= $1
	`

	result, err := t.tx.ExecContext(ctx, query, amount, campaignID)
	if err != nil {
		return false, fmt.Errorf("debit vault: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit vault rows affected: %w", err)
	}
	return rows > 0, nil
}

func (t *Tx) RecordIssuance(ctx context.Context, iss *model.Issuance) error {
	query := `
		INSERT INTO issuances (campaign_id, pack_index, recipient, asset,
		                       amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := t.tx.GetContext(ctx, &iss.ID, query,
		iss.CampaignID, iss.PackIndex, iss.Recipient, iss.Asset,
		iss.Amount, iss.CreatedAt)
	if err != nil {
		return fmt.Errorf("record issuance: %w", err)
	}
	return nil
}
