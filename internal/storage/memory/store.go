// Package memory provides an in-memory campaign.Store. It backs tests and
// the APP_STORAGE=memory development mode.
package memory

import (
	"context"
	"sync"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/model"
)

// Store keeps all campaign state in process. Each campaign carries its own
// mutex so transactions on different campaigns never contend.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]*campaignState
}

type campaignState struct {
	mu       sync.Mutex
	exists   bool
	campaign model.Campaign
	receipts map[uint32]model.Receipt
	hasVault bool
	vault    uint64
	issued   []model.Issuance
	nextID   int64
}

var _ campaign.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{campaigns: make(map[string]*campaignState)}
}

func (s *Store) state(id string) *campaignState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.campaigns[id]
	if !ok {
		cs = &campaignState{receipts: make(map[uint32]model.Receipt), nextID: 1}
		s.campaigns[id] = cs
	}
	return cs
}

func (s *Store) lookup(id string) (*campaignState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.campaigns[id]
	return cs, ok
}

// GetCampaign implements campaign.Store.
func (s *Store) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	cs, ok := s.lookup(id)
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return (&tx{cs: cs}).GetCampaign(ctx, id)
}

// GetReceipt implements campaign.Store.
func (s *Store) GetReceipt(ctx context.Context, campaignID string, packIndex uint32) (*model.Receipt, error) {
	cs, ok := s.lookup(campaignID)
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return (&tx{cs: cs}).GetReceipt(ctx, campaignID, packIndex)
}

// VaultBalance implements campaign.Store.
func (s *Store) VaultBalance(ctx context.Context, campaignID string) (uint64, error) {
	cs, ok := s.lookup(campaignID)
	if !ok {
		return 0, campaign.ErrCampaignNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return (&tx{cs: cs}).VaultBalance(ctx, campaignID)
}

// Issuances returns a copy of the issuance log for a campaign, oldest first.
func (s *Store) Issuances(campaignID string) []model.Issuance {
	cs, ok := s.lookup(campaignID)
	if !ok {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]model.Issuance(nil), cs.issued...)
}

// WithinCampaignTx implements campaign.Store. The campaign's mutex is held
// for the duration of fn; on error the pre-transaction snapshot is restored,
// so fn either applies fully or not at all.
func (s *Store) WithinCampaignTx(ctx context.Context, campaignID string, fn func(campaign.Tx) error) error {
	cs := s.state(campaignID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	snap := cs.snapshot()
	if err := fn(&tx{cs: cs}); err != nil {
		cs.restore(snap)
		return err
	}
	return nil
}

func (cs *campaignState) snapshot() *campaignState {
	receipts := make(map[uint32]model.Receipt, len(cs.receipts))
	for k, v := range cs.receipts {
		receipts[k] = v
	}
	return &campaignState{
		exists:   cs.exists,
		campaign: cs.campaign,
		receipts: receipts,
		hasVault: cs.hasVault,
		vault:    cs.vault,
		issued:   append([]model.Issuance(nil), cs.issued...),
		nextID:   cs.nextID,
	}
}

func (cs *campaignState) restore(snap *campaignState) {
	cs.exists = snap.exists
	cs.campaign = snap.campaign
	cs.receipts = snap.receipts
	cs.hasVault = snap.hasVault
	cs.vault = snap.vault
	cs.issued = snap.issued
	cs.nextID = snap.nextID
}
