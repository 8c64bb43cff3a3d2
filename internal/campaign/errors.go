package campaign

import "errors"

// Protocol errors. Every failed operation returns one of these (possibly
// wrapped); callers branch with errors.Is.
var (
	// ErrInvalidAmount rejects a zero pack price or zero capacity at open.
	ErrInvalidAmount = errors.New("campaign: invalid amount")

	// ErrCampaignExists rejects opening a campaign whose seed-derived id is
	// already taken.
	ErrCampaignExists = errors.New("campaign: campaign already exists")

	// ErrCampaignNotFound is returned for operations on unknown campaigns.
	ErrCampaignNotFound = errors.New("campaign: campaign not found")

	// ErrCampaignNotActive rejects purchases on a closed campaign.
	ErrCampaignNotActive = errors.New("campaign: campaign is not active")

	// ErrSoldOut rejects purchases once packs_sold reaches total_packs.
	ErrSoldOut = errors.New("campaign: all packs have been sold")

	// ErrReceiptNotFound is returned for claims against an unsold pack index.
	ErrReceiptNotFound = errors.New("campaign: receipt not found")

	// ErrNotPackOwner rejects claims by anyone but the receipt's buyer.
	ErrNotPackOwner = errors.New("campaign: caller does not own this pack")

	// ErrAlreadyClaimed rejects a second claim on the same receipt.
	ErrAlreadyClaimed = errors.New("campaign: pack has already been claimed")

	// ErrInvalidProof rejects a claim whose merkle proof does not recompute
	// the committed root.
	ErrInvalidProof = errors.New("campaign: invalid merkle proof")

	// ErrInvalidMint rejects a claim naming a reward asset other than the
	// campaign's.
	ErrInvalidMint = errors.New("campaign: reward asset does not match campaign")

	// ErrUnauthorized rejects admin operations by anyone but the authority.
	ErrUnauthorized = errors.New("campaign: unauthorized")

	// ErrInsufficientFunds rejects withdrawals exceeding the vault balance.
	ErrInsufficientFunds = errors.New("campaign: insufficient vault funds")
)
