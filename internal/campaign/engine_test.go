package campaign_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/merkle"
	"github.com/packworks/mysterypack/internal/reward"
	"github.com/packworks/mysterypack/internal/storage/memory"
)

const (
	testAuthority = "operator-1"
	testAsset     = "PACKTOKEN"
	testPrice     = uint64(100_000_000)
)

// fixture holds a committed campaign: the reveals the operator generated
// off-band plus the opened campaign's id.
type fixture struct {
	engine     *campaign.Engine
	store      *memory.Store
	issuer     *reward.MemoryIssuer
	campaignID string
	amounts    []uint64
	salts      [][32]byte
	tree       *merkle.Tree
}

func repeatSalt(b byte) [32]byte {
	var salt [32]byte
	for i := range salt {
		salt[i] = b
	}
	return salt
}

func newFixture(t *testing.T, seed uint64, amounts []uint64) *fixture {
	t.Helper()

	salts := make([][32]byte, len(amounts))
	leaves := make([][32]byte, len(amounts))
	for i, amount := range amounts {
		salts[i] = repeatSalt(byte(i + 1))
		leaves[i] = merkle.Leaf(uint32(i), amount, salts[i])
	}
	tree := merkle.BuildTree(leaves)

	store := memory.NewStore()
	issuer := reward.NewMemoryIssuer()
	engine := campaign.NewEngine(store, issuer)

	c, err := engine.Open(context.Background(), campaign.OpenParams{
		Seed:        seed,
		MerkleRoot:  tree.Root(),
		PackPrice:   testPrice,
		TotalPacks:  uint32(len(amounts)),
		Authority:   testAuthority,
		RewardAsset: testAsset,
	})
	require.NoError(t, err)

	return &fixture{
		engine:     engine,
		store:      store,
		issuer:     issuer,
		campaignID: c.ID,
		amounts:    amounts,
		salts:      salts,
		tree:       tree,
	}
}

func (f *fixture) proof(t *testing.T, index uint32) [][32]byte {
	t.Helper()
	proof, ok := f.tree.Proof(index)
	require.True(t, ok)
	return proof
}

func (f *fixture) claim(caller string, index uint32, amount uint64, salt [32]byte, proof [][32]byte) error {
	return f.engine.Claim(context.Background(), campaign.ClaimParams{
		CampaignID:  f.campaignID,
		PackIndex:   index,
		Caller:      caller,
		Amount:      amount,
		Salt:        salt,
		Proof:       proof,
		RewardAsset: testAsset,
	})
}

func TestOpenValidation(t *testing.T) {
	engine := campaign.NewEngine(memory.NewStore(), reward.NewMemoryIssuer())
	ctx := context.Background()

	_, err := engine.Open(ctx, campaign.OpenParams{
		Seed: 1, PackPrice: 0, TotalPacks: 10, Authority: testAuthority,
	})
	require.ErrorIs(t, err, campaign.ErrInvalidAmount)

	_, err = engine.Open(ctx, campaign.OpenParams{
		Seed: 1, PackPrice: testPrice, TotalPacks: 0, Authority: testAuthority,
	})
	require.ErrorIs(t, err, campaign.ErrInvalidAmount)
}

func TestOpenDuplicateSeed(t *testing.T) {
	engine := campaign.NewEngine(memory.NewStore(), reward.NewMemoryIssuer())
	ctx := context.Background()

	params := campaign.OpenParams{
		Seed: 42, PackPrice: testPrice, TotalPacks: 5,
		Authority: testAuthority, RewardAsset: testAsset,
	}
	_, err := engine.Open(ctx, params)
	require.NoError(t, err)

	_, err = engine.Open(ctx, params)
	require.ErrorIs(t, err, campaign.ErrCampaignExists)
}

func TestDeriveIDDeterministic(t *testing.T) {
	require.Equal(t, campaign.DeriveID(7), campaign.DeriveID(7))
	require.NotEqual(t, campaign.DeriveID(7), campaign.DeriveID(8))
	require.Len(t, campaign.DeriveID(7), 64)
}

func TestPurchaseAssignsSequentialIndices(t *testing.T) {
	f := newFixture(t, 1, []uint64{100, 200, 300})
	ctx := context.Background()

	for want := uint32(0); want < 3; want++ {
		r, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
		require.NoError(t, err)
		require.Equal(t, want, r.PackIndex)
		require.Equal(t, "buyer-a", r.Buyer)
		require.Equal(t, testPrice, r.PaymentAmount)
		require.False(t, r.IsClaimed)
		require.NotEmpty(t, r.ID)
	}

	c, err := f.engine.Get(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, uint32(3), c.PacksSold)

	balance, err := f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, 3*testPrice, balance)
}

func TestPurchaseSoldOut(t *testing.T) {
	f := newFixture(t, 2, []uint64{100})
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.NoError(t, err)

	_, err = f.engine.Purchase(ctx, f.campaignID, "buyer-b")
	require.ErrorIs(t, err, campaign.ErrSoldOut)

	// A failed purchase leaves no trace.
	balance, err := f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, testPrice, balance)
}

func TestPurchaseUnknownCampaign(t *testing.T) {
	f := newFixture(t, 3, []uint64{100})

	_, err := f.engine.Purchase(context.Background(), "no-such-campaign", "buyer-a")
	require.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestCloseStopsPurchases(t *testing.T) {
	f := newFixture(t, 4, []uint64{100, 200})
	ctx := context.Background()

	require.ErrorIs(t, f.engine.Close(ctx, f.campaignID, "stranger"), campaign.ErrUnauthorized)

	require.NoError(t, f.engine.Close(ctx, f.campaignID, testAuthority))

	_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.ErrorIs(t, err, campaign.ErrCampaignNotActive)

	// Closing again is harmless, and there is no way back to active.
	require.NoError(t, f.engine.Close(ctx, f.campaignID, testAuthority))
	c, err := f.engine.Get(ctx, f.campaignID)
	require.NoError(t, err)
	require.False(t, c.IsActive)
}

func TestClaimLifecycle(t *testing.T) {
	// The committed set from the campaign walkthrough: ten packs, fixed
	// amounts and salts.
	amounts := []uint64{100, 250, 500, 50, 150, 75, 1000, 200, 125, 300}
	f := newFixture(t, 5, amounts)
	ctx := context.Background()

	r0, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.NoError(t, err)
	require.Equal(t, uint32(0), r0.PackIndex)

	balance, err := f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, testPrice, balance)

	_, err = f.engine.Purchase(ctx, f.campaignID, "buyer-b")
	require.NoError(t, err)

	// Claim pack 0 with its committed reveal.
	require.NoError(t, f.claim("buyer-a", 0, 100, f.salts[0], f.proof(t, 0)))
	require.Equal(t, uint64(100), f.issuer.Balance("buyer-a", testAsset))

	r, err := f.store.GetReceipt(ctx, f.campaignID, 0)
	require.NoError(t, err)
	require.True(t, r.IsClaimed)
	require.NotNil(t, r.ClaimedAt)

	issued := f.store.Issuances(f.campaignID)
	require.Len(t, issued, 1)
	require.Equal(t, uint64(100), issued[0].Amount)
	require.Equal(t, "buyer-a", issued[0].Recipient)

	// Second claim on the same pack fails and issues nothing more.
	err = f.claim("buyer-a", 0, 100, f.salts[0], f.proof(t, 0))
	require.ErrorIs(t, err, campaign.ErrAlreadyClaimed)
	require.Equal(t, uint64(100), f.issuer.Balance("buyer-a", testAsset))

	// Pack 0's reveal does not open pack 1.
	err = f.claim("buyer-b", 1, 100, f.salts[0], f.proof(t, 0))
	require.ErrorIs(t, err, campaign.ErrInvalidProof)
}

func TestClaimRejections(t *testing.T) {
	amounts := []uint64{100, 250, 500}
	f := newFixture(t, 6, amounts)
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.NoError(t, err)

	// Not the buyer.
	err = f.claim("buyer-b", 0, 100, f.salts[0], f.proof(t, 0))
	require.ErrorIs(t, err, campaign.ErrNotPackOwner)

	// Wrong reward asset.
	err = f.engine.Claim(ctx, campaign.ClaimParams{
		CampaignID: f.campaignID, PackIndex: 0, Caller: "buyer-a",
		Amount: 100, Salt: f.salts[0], Proof: f.proof(t, 0),
		RewardAsset: "OTHER",
	})
	require.ErrorIs(t, err, campaign.ErrInvalidMint)

	// Wrong salt, then wrong amount.
	err = f.claim("buyer-a", 0, 100, repeatSalt(0xEE), f.proof(t, 0))
	require.ErrorIs(t, err, campaign.ErrInvalidProof)
	err = f.claim("buyer-a", 0, 101, f.salts[0], f.proof(t, 0))
	require.ErrorIs(t, err, campaign.ErrInvalidProof)

	// Unsold pack index has no receipt.
	err = f.claim("buyer-a", 2, 500, f.salts[2], f.proof(t, 2))
	require.ErrorIs(t, err, campaign.ErrReceiptNotFound)

	// Nothing was issued along the way.
	require.Zero(t, f.issuer.Balance("buyer-a", testAsset))
	require.Empty(t, f.store.Issuances(f.campaignID))
}

func TestClaimRemainsValidAfterClose(t *testing.T) {
	f := newFixture(t, 7, []uint64{100, 250})
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.NoError(t, err)
	require.NoError(t, f.engine.Close(ctx, f.campaignID, testAuthority))

	// Closing stops the sale, not redemption of already-sold packs.
	require.NoError(t, f.claim("buyer-a", 0, 100, f.salts[0], f.proof(t, 0)))
	require.Equal(t, uint64(100), f.issuer.Balance("buyer-a", testAsset))
}

type failingIssuer struct{}

func (failingIssuer) Issue(ctx context.Context, recipient, asset string, amount uint64) error {
	return errors.New("mint bridge unavailable")
}

func TestClaimIssuerFailureLeavesReceiptUnclaimed(t *testing.T) {
	amounts := []uint64{100, 250}
	salts := make([][32]byte, len(amounts))
	leaves := make([][32]byte, len(amounts))
	for i, amount := range amounts {
		salts[i] = repeatSalt(byte(i + 1))
		leaves[i] = merkle.Leaf(uint32(i), amount, salts[i])
	}
	tree := merkle.BuildTree(leaves)

	store := memory.NewStore()
	engine := campaign.NewEngine(store, failingIssuer{})
	ctx := context.Background()

	c, err := engine.Open(ctx, campaign.OpenParams{
		Seed: 8, MerkleRoot: tree.Root(), PackPrice: testPrice,
		TotalPacks: 2, Authority: testAuthority, RewardAsset: testAsset,
	})
	require.NoError(t, err)

	_, err = engine.Purchase(ctx, c.ID, "buyer-a")
	require.NoError(t, err)

	proof, ok := tree.Proof(0)
	require.True(t, ok)
	err = engine.Claim(ctx, campaign.ClaimParams{
		CampaignID: c.ID, PackIndex: 0, Caller: "buyer-a",
		Amount: 100, Salt: salts[0], Proof: proof, RewardAsset: testAsset,
	})
	require.Error(t, err)

	// The whole claim rolled back: the pack stays claimable.
	r, err := store.GetReceipt(ctx, c.ID, 0)
	require.NoError(t, err)
	require.False(t, r.IsClaimed)
	require.Empty(t, store.Issuances(c.ID))
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 9, []uint64{100, 250, 500})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
		require.NoError(t, err)
	}

	// Non-authority cannot withdraw, and the balance is untouched.
	_, err := f.engine.Withdraw(ctx, f.campaignID, "stranger", nil)
	require.ErrorIs(t, err, campaign.ErrUnauthorized)
	balance, err := f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, 3*testPrice, balance)

	// Requesting more than the balance fails instead of truncating.
	over := 3*testPrice + 1
	_, err = f.engine.Withdraw(ctx, f.campaignID, testAuthority, &over)
	require.ErrorIs(t, err, campaign.ErrInsufficientFunds)

	// Partial withdrawal.
	part := testPrice
	got, err := f.engine.Withdraw(ctx, f.campaignID, testAuthority, &part)
	require.NoError(t, err)
	require.Equal(t, testPrice, got)

	// Withdrawal works on a closed campaign, and nil drains the vault.
	require.NoError(t, f.engine.Close(ctx, f.campaignID, testAuthority))
	got, err = f.engine.Withdraw(ctx, f.campaignID, testAuthority, nil)
	require.NoError(t, err)
	require.Equal(t, 2*testPrice, got)

	balance, err = f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestConcurrentPurchases(t *testing.T) {
	const capacity = 32
	const attempts = 100

	amounts := make([]uint64, capacity)
	for i := range amounts {
		amounts[i] = uint64(100 * (i + 1))
	}
	f := newFixture(t, 10, amounts)
	ctx := context.Background()

	indices := make(chan uint32, attempts)
	failures := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.engine.Purchase(ctx, f.campaignID, "buyer")
			if err != nil {
				failures <- err
				return
			}
			indices <- r.PackIndex
		}()
	}
	wg.Wait()
	close(indices)
	close(failures)

	seen := make(map[uint32]bool)
	for idx := range indices {
		require.False(t, seen[idx], "index %d assigned twice", idx)
		seen[idx] = true
	}
	require.Len(t, seen, capacity)
	for i := uint32(0); i < capacity; i++ {
		require.True(t, seen[i], "gap at index %d", i)
	}

	var soldOut int
	for err := range failures {
		require.ErrorIs(t, err, campaign.ErrSoldOut)
		soldOut++
	}
	require.Equal(t, attempts-capacity, soldOut)

	balance, err := f.engine.VaultBalance(ctx, f.campaignID)
	require.NoError(t, err)
	require.Equal(t, capacity*testPrice, balance)
}

func TestConcurrentClaimsSingleReceipt(t *testing.T) {
	f := newFixture(t, 11, []uint64{100, 250})
	ctx := context.Background()

	_, err := f.engine.Purchase(ctx, f.campaignID, "buyer-a")
	require.NoError(t, err)

	const attempts = 8
	proof := f.proof(t, 0)
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.claim("buyer-a", 0, 100, f.salts[0], proof)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, campaign.ErrAlreadyClaimed):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, attempts-1, already)
	require.Equal(t, uint64(100), f.issuer.Balance("buyer-a", testAsset))
}
