package model

import (
	"time"
)

// Campaign represents a sealed pack campaign in the database. The merkle
// root, price, capacity, authority and reward asset are immutable after
// creation; only packs_sold and is_active change.
type Campaign struct {
	ID          string    `db:"id" json:"id"`
	Seed        uint64    `db:"seed" json:"seed"`
	Authority   string    `db:"authority" json:"authority"`
	RewardAsset string    `db:"reward_asset" json:"reward_asset"`
	MerkleRoot  []byte    `db:"merkle_root" json:"merkle_root"`
	PackPrice   uint64    `db:"pack_price" json:"pack_price"`
	TotalPacks  uint32    `db:"total_packs" json:"total_packs"`
	PacksSold   uint32    `db:"packs_sold" json:"packs_sold"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Root returns the merkle root as a fixed-size array.
func (c *Campaign) Root() [32]byte {
	var root [32]byte
	copy(root[:], c.MerkleRoot)
	return root
}

// Receipt represents one sold pack, keyed by (campaign_id, pack_index).
type Receipt struct {
	ID            string     `db:"id" json:"id"`
	CampaignID    string     `db:"campaign_id" json:"campaign_id"`
	Buyer         string     `db:"buyer" json:"buyer"`
	PackIndex     uint32     `db:"pack_index" json:"pack_index"`
	IsClaimed     bool       `db:"is_claimed" json:"is_claimed"`
	PaymentAmount uint64     `db:"payment_amount" json:"payment_amount"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ClaimedAt     *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
}

// Issuance is the audit record written for every successful claim.
type Issuance struct {
	ID         int64     `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	PackIndex  uint32    `db:"pack_index" json:"pack_index"`
	Recipient  string    `db:"recipient" json:"recipient"`
	Asset      string    `db:"asset" json:"asset"`
	Amount     uint64    `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
