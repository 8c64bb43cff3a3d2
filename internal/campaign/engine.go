// Package campaign implements the sealed-allocation voucher protocol: a
// campaign commits to a merkle root over per-pack (index, amount, salt)
// leaves, sells sequentially numbered pack slots for a fixed price into an
// escrow vault, and redeems packs against the commitment.
package campaign

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/packworks/mysterypack/internal/merkle"
	"github.com/packworks/mysterypack/internal/model"
)

// Engine runs the campaign state machine on top of a Store. All operations
// are synchronous and either commit fully or leave no trace.
type Engine struct {
	store  Store
	issuer RewardIssuer
	nowFn  func() time.Time
}

// NewEngine creates an engine over the given store and reward issuer.
func NewEngine(store Store, issuer RewardIssuer) *Engine {
	return &Engine{
		store:  store,
		issuer: issuer,
		nowFn:  time.Now,
	}
}

// DeriveID maps a creation seed to the campaign's identifier, mirroring the
// seed-derived record addressing of the commitment scheme.
func DeriveID(seed uint64) string {
	buf := make([]byte, 0, 16)
	buf = append(buf, "campaign"...)
	buf = binary.LittleEndian.AppendUint64(buf, seed)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// OpenParams carries the immutable campaign parameters fixed at creation.
type OpenParams struct {
	Seed        uint64
	MerkleRoot  [32]byte
	PackPrice   uint64
	TotalPacks  uint32
	Authority   string
	RewardAsset string
}

// Open creates a campaign and its empty vault. The merkle root, price,
// capacity, authority and reward asset can never change afterwards.
func (e *Engine) Open(ctx context.Context, p OpenParams) (*model.Campaign, error) {
	if p.PackPrice == 0 || p.TotalPacks == 0 {
		return nil, ErrInvalidAmount
	}

	now := e.nowFn()
	c := &model.Campaign{
		ID:          DeriveID(p.Seed),
		Seed:        p.Seed,
		Authority:   p.Authority,
		RewardAsset: p.RewardAsset,
		MerkleRoot:  append([]byte(nil), p.MerkleRoot[:]...),
		PackPrice:   p.PackPrice,
		TotalPacks:  p.TotalPacks,
		PacksSold:   0,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := e.store.WithinCampaignTx(ctx, c.ID, func(tx Tx) error {
		if err := tx.CreateCampaign(ctx, c); err != nil {
			return err
		}
		return tx.CreateVault(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the current campaign state.
func (e *Engine) Get(ctx context.Context, campaignID string) (*model.Campaign, error) {
	return e.store.GetCampaign(ctx, campaignID)
}

// VaultBalance returns the campaign's current escrow balance.
func (e *Engine) VaultBalance(ctx context.Context, campaignID string) (uint64, error) {
	return e.store.VaultBalance(ctx, campaignID)
}

// Purchase sells the next sequential pack slot to buyer. The index
// assignment, vault credit and receipt creation commit as one unit; buyers
// cannot choose an index.
func (e *Engine) Purchase(ctx context.Context, campaignID, buyer string) (*model.Receipt, error) {
	var receipt *model.Receipt
	err := e.store.WithinCampaignTx(ctx, campaignID, func(tx Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return ErrCampaignNotActive
		}
		if c.PacksSold >= c.TotalPacks {
			return ErrSoldOut
		}

		receipt = &model.Receipt{
			ID:            uuid.NewString(),
			CampaignID:    c.ID,
			Buyer:         buyer,
			PackIndex:     c.PacksSold,
			IsClaimed:     false,
			PaymentAmount: c.PackPrice,
			CreatedAt:     e.nowFn(),
		}
		if err := tx.CreateReceipt(ctx, receipt); err != nil {
			return err
		}
		if err := tx.CreditVault(ctx, c.ID, c.PackPrice); err != nil {
			return err
		}
		return tx.SetPacksSold(ctx, c.ID, c.PacksSold+1)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ClaimParams carries a buyer's reveal for one purchased pack.
type ClaimParams struct {
	CampaignID  string
	PackIndex   uint32
	Caller      string
	Amount      uint64
	Salt        [32]byte
	Proof       [][32]byte
	RewardAsset string
}

// Claim verifies the reveal against the campaign's merkle root and issues
// the committed reward. The receipt flips to claimed atomically with the
// issuance; a second claim on the same receipt fails ErrAlreadyClaimed.
// Claims are independent of is_active: closing a campaign stops sales only.
func (e *Engine) Claim(ctx context.Context, p ClaimParams) error {
	return e.store.WithinCampaignTx(ctx, p.CampaignID, func(tx Tx) error {
		c, err := tx.GetCampaign(ctx, p.CampaignID)
		if err != nil {
			return err
		}
		r, err := tx.GetReceipt(ctx, p.CampaignID, p.PackIndex)
		if err != nil {
			return err
		}
		if r.Buyer != p.Caller {
			return ErrNotPackOwner
		}
		if r.IsClaimed {
			return ErrAlreadyClaimed
		}
		if p.RewardAsset != c.RewardAsset {
			return ErrInvalidMint
		}

		leaf := merkle.Leaf(r.PackIndex, p.Amount, p.Salt)
		if !merkle.Verify(c.Root(), leaf, p.Proof, r.PackIndex) {
			return ErrInvalidProof
		}

		// Compare-and-set before issuing: a racing claim on the same receipt
		// must observe is_claimed and lose.
		claimed, err := tx.ClaimReceipt(ctx, p.CampaignID, p.PackIndex)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyClaimed
		}

		iss := &model.Issuance{
			CampaignID: c.ID,
			PackIndex:  r.PackIndex,
			Recipient:  p.Caller,
			Asset:      c.RewardAsset,
			Amount:     p.Amount,
			CreatedAt:  e.nowFn(),
		}
		if err := tx.RecordIssuance(ctx, iss); err != nil {
			return err
		}
		if err := e.issuer.Issue(ctx, p.Caller, c.RewardAsset, p.Amount); err != nil {
			return fmt.Errorf("issue reward: %w", err)
		}
		return nil
	})
}

// Withdraw moves funds out of the vault to the authority. A nil amount
// withdraws the full balance; a requested amount above the balance fails
// rather than truncating. Withdrawal is permitted on closed campaigns.
func (e *Engine) Withdraw(ctx context.Context, campaignID, caller string, amount *uint64) (uint64, error) {
	var withdrawn uint64
	err := e.store.WithinCampaignTx(ctx, campaignID, func(tx Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if caller != c.Authority {
			return ErrUnauthorized
		}

		balance, err := tx.VaultBalance(ctx, c.ID)
		if err != nil {
			return err
		}
		withdrawn = balance
		if amount != nil {
			withdrawn = *amount
		}
		if withdrawn > balance {
			return ErrInsufficientFunds
		}
		if withdrawn == 0 {
			return nil
		}

		ok, err := tx.DebitVault(ctx, c.ID, withdrawn)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return withdrawn, nil
}

// Close deactivates the campaign, stopping further purchases. Closing is
// irreversible; closing an already-closed campaign is a harmless no-op.
// Unclaimed receipts remain claimable indefinitely.
func (e *Engine) Close(ctx context.Context, campaignID, caller string) error {
	return e.store.WithinCampaignTx(ctx, campaignID, func(tx Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if caller != c.Authority {
			return ErrUnauthorized
		}
		if !c.IsActive {
			return nil
		}
		return tx.SetInactive(ctx, c.ID)
	})
}
