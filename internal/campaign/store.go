package campaign

import (
	"context"

	"github.com/packworks/mysterypack/internal/model"
)

// Store is the persistence surface the engine runs on. Implementations must
// make WithinCampaignTx all-or-nothing: either every mutation performed by fn
// is applied, or none is.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error)
	VaultBalance(ctx context.Context, campaignID string) (uint64, error)

	// WithinCampaignTx runs fn in a transaction scoped to one campaign.
	// Implementations serialize concurrent transactions touching the same
	// campaign row (lock or row-level FOR UPDATE) but must not serialize
	// across campaigns.
	WithinCampaignTx(ctx context.Context, campaignID string, fn func(Tx) error) error
}

// Tx is the mutation surface available inside WithinCampaignTx.
type Tx interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	// GetCampaignForUpdate reads the campaign and holds it against concurrent
	// purchase/admin transactions until the enclosing transaction ends.
	GetCampaignForUpdate(ctx context.Context, id string) (*model.Campaign, error)
	SetPacksSold(ctx context.Context, id string, sold uint32) error
	SetInactive(ctx context.Context, id string) error

	CreateReceipt(ctx context.Context, r *model.Receipt) error
	GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error)
	// ClaimReceipt atomically flips is_claimed from false to true. It
	// reports false when the receipt was already claimed.
	ClaimReceipt(ctx context.Context, campaignID string, packIndex uint32) (bool, error)

	CreateVault(ctx context.Context, campaignID string) error
	VaultBalance(ctx context.Context, campaignID string) (uint64, error)
	CreditVault(ctx context.Context, campaignID string, amount uint64) error
	// DebitVault subtracts amount if the balance covers it and reports
	// whether it did.
	DebitVault(ctx context.Context, campaignID string, amount uint64) (bool, error)

	RecordIssuance(ctx context.Context, iss *model.Issuance) error
}

// RewardIssuer is the external capability that delivers reward units to a
// buyer on a successful claim. An error aborts the claim transaction.
type RewardIssuer interface {
	Issue(ctx context.Context, recipient, asset string, amount uint64) error
}
