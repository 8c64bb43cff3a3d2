package memory

import (
	"context"
	"time"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/model"
)

// tx mutates a campaignState whose mutex the enclosing transaction holds.
type tx struct {
	cs *campaignState
}

var _ campaign.Tx = (*tx)(nil)

func (t *tx) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if t.cs.exists {
		return campaign.ErrCampaignExists
	}
	t.cs.exists = true
	t.cs.campaign = *c
	t.cs.campaign.MerkleRoot = append([]byte(nil), c.MerkleRoot...)
	return nil
}

func (t *tx) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	if !t.cs.exists {
		return nil, campaign.ErrCampaignNotFound
	}
	c := t.cs.campaign
	c.MerkleRoot = append([]byte(nil), t.cs.campaign.MerkleRoot...)
	return &c, nil
}

func (t *tx) GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	// The campaign mutex is already held for the whole transaction.
	return t.GetCampaign(ctx, id)
}

func (t *tx) SetPacksSold(ctx context.Context, id string, sold uint32) error {
	if !t.cs.exists {
		return campaign.ErrCampaignNotFound
	}
	t.cs.campaign.PacksSold = sold
	t.cs.campaign.UpdatedAt = time.Now()
	return nil
}

func (t *tx) SetInactive(ctx context.Context, id string) error {
	if !t.cs.exists {
		return campaign.ErrCampaignNotFound
	}
	t.cs.campaign.IsActive = false
	t.cs.campaign.UpdatedAt = time.Now()
	return nil
}

func (t *tx) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	t.cs.receipts[r.PackIndex] = *r
	return nil
}

func (t *tx) GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error) {
	r, ok := t.cs.receipts[packIndex]
	if !ok {
		return nil, campaign.ErrReceiptNotFound
	}
	return &r, nil
}

func (t *tx) ClaimReceipt(ctx context.Context, campaignID string, packIndex uint32) (bool, error) {
	r, ok := t.cs.receipts[packIndex]
	if !ok {
		return false, campaign.ErrReceiptNotFound
	}
	if r.IsClaimed {
		return false, nil
	}
	now := time.Now()
	r.IsClaimed = true
	r.ClaimedAt = &now
	t.cs.receipts[packIndex] = r
	return true, nil
}

func (t *tx) CreateVault(ctx context.Context, campaignID string) error {
	t.cs.hasVault = true
	t.cs.vault = 0
	return nil
}

func (t *tx) VaultBalance(ctx context.Context, campaignID string) (uint64, error) {
	if !t.cs.hasVault {
		return 0, campaign.ErrCampaignNotFound
	}
	return t.cs.vault, nil
}

func (t *tx) CreditVault(ctx context.Context, campaignID string, amount uint64) error {
	if !t.cs.hasVault {
		return campaign.ErrCampaignNotFound
	}
	t.cs.vault += amount
	return nil
}

func (t *tx) DebitVault(ctx context.Context, campaignID string, amount uint64) (bool, error) {
	if !t.cs.hasVault {
		return false, campaign.ErrCampaignNotFound
	}
	if t.cs.vault < amount {
		return false, nil
	}
	t.cs.vault -= amount
	return true, nil
}

func (t *tx) RecordIssuance(ctx context.Context, iss *model.Issuance) error {
	iss.ID = t.cs.nextID
	t.cs.nextID++
	t.cs.issued = append(t.cs.issued, *iss)
	return nil
}
