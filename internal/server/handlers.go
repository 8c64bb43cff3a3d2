package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/packworks/mysterypack/internal/campaign"
	"github.com/packworks/mysterypack/internal/metrics"
	"github.com/packworks/mysterypack/internal/model"
)

type openRequest struct {
	Seed        uint64 `json:"seed"`
	MerkleRoot  string `json:"merkle_root"` // 32 bytes, hex
	PackPrice   uint64 `json:"pack_price"`
	TotalPacks  uint32 `json:"total_packs"`
	Authority   string `json:"authority"`
	RewardAsset string `json:"reward_asset"`
}

type campaignResponse struct {
	CampaignID  string `json:"campaign_id"`
	Seed        uint64 `json:"seed"`
	Authority   string `json:"authority"`
	RewardAsset string `json:"reward_asset"`
	MerkleRoot  string `json:"merkle_root"`
	PackPrice   uint64 `json:"pack_price"`
	TotalPacks  uint32 `json:"total_packs"`
	PacksSold   uint32 `json:"packs_sold"`
	IsActive    bool   `json:"is_active"`
}

func toCampaignResponse(c *model.Campaign) campaignResponse {
	return campaignResponse{
		CampaignID:  c.ID,
		Seed:        c.Seed,
		Authority:   c.Authority,
		RewardAsset: c.RewardAsset,
		MerkleRoot:  hex.EncodeToString(c.MerkleRoot),
		PackPrice:   c.PackPrice,
		TotalPacks:  c.TotalPacks,
		PacksSold:   c.PacksSold,
		IsActive:    c.IsActive,
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	root, err := parseHash(req.MerkleRoot)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("merkle_root: %w", err))
		return
	}
	if req.Authority == "" {
		writeBadRequest(w, fmt.Errorf("authority is required"))
		return
	}

	c, err := s.engine.Open(r.Context(), campaign.OpenParams{
		Seed:        req.Seed,
		MerkleRoot:  root,
		PackPrice:   req.PackPrice,
		TotalPacks:  req.TotalPacks,
		Authority:   req.Authority,
		RewardAsset: req.RewardAsset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignResponse(c))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Get(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.engine.VaultBalance(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		campaignResponse
		VaultBalance uint64 `json:"vault_balance"`
	}{toCampaignResponse(c), balance}
	writeJSON(w, http.StatusOK, resp)
}

type purchaseRequest struct {
	Buyer string `json:"buyer"`
}

type purchaseResponse struct {
	ReceiptID     string `json:"receipt_id"`
	PackIndex     uint32 `json:"pack_index"`
	PaymentAmount uint64 `json:"payment_amount"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "failed"
	defer func() {
		metrics.RecordPurchaseDuration(status, time.Since(start).Seconds())
	}()

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Buyer == "" {
		writeBadRequest(w, fmt.Errorf("buyer is required"))
		return
	}

	receipt, err := s.engine.Purchase(r.Context(), chi.URLParam(r, "campaignID"), req.Buyer)
	if err != nil {
		writeError(w, err)
		return
	}
	status = "success"
	metrics.PacksSold.Inc()

	writeJSON(w, http.StatusCreated, purchaseResponse{
		ReceiptID:     receipt.ID,
		PackIndex:     receipt.PackIndex,
		PaymentAmount: receipt.PaymentAmount,
	})
}

type claimRequest struct {
	PackIndex   uint32   `json:"pack_index"`
	Caller      string   `json:"caller"`
	Amount      uint64   `json:"amount"`
	Salt        string   `json:"salt"`  // 32 bytes, hex
	Proof       []string `json:"proof"` // 32-byte hex hashes, bottom to top
	RewardAsset string   `json:"reward_asset"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "failed"
	defer func() {
		metrics.RecordClaimDuration(status, time.Since(start).Seconds())
	}()

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	salt, err := parseHash(req.Salt)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("salt: %w", err))
		return
	}
	proof := make([][32]byte, 0, len(req.Proof))
	for i, p := range req.Proof {
		h, err := parseHash(p)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("proof[%d]: %w", i, err))
			return
		}
		proof = append(proof, h)
	}

	err = s.engine.Claim(r.Context(), campaign.ClaimParams{
		CampaignID:  chi.URLParam(r, "campaignID"),
		PackIndex:   req.PackIndex,
		Caller:      req.Caller,
		Amount:      req.Amount,
		Salt:        salt,
		Proof:       proof,
		RewardAsset: req.RewardAsset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status = "success"

	writeJSON(w, http.StatusOK, struct {
		PackIndex uint32 `json:"pack_index"`
		Amount    uint64 `json:"amount"`
	}{req.PackIndex, req.Amount})
}

type withdrawRequest struct {
	Caller string  `json:"caller"`
	Amount *uint64 `json:"amount,omitempty"` // nil withdraws the full balance
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	withdrawn, err := s.engine.Withdraw(r.Context(), chi.URLParam(r, "campaignID"), req.Caller, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Withdrawn uint64 `json:"withdrawn"`
	}{withdrawn})
}

type closeRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	if err := s.engine.Close(r.Context(), chi.URLParam(r, "campaignID"), req.Caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		IsActive bool `json:"is_active"`
	}{false})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: err.Error()})
}

// parseHash decodes a 32-byte hex string.
func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
