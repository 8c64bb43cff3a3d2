// Package server exposes the campaign operations over HTTP/JSON.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/packworks/mysterypack/internal/campaign"
)

// Server routes campaign requests to the engine.
type Server struct {
	engine  *campaign.Engine
	limiter *rate.Limiter
}

// Options tunes the server.
type Options struct {
	// PurchaseRPS throttles purchase requests across all campaigns;
	// zero disables the limiter.
	PurchaseRPS   int
	PurchaseBurst int
}

// New creates a Server over the engine.
func New(engine *campaign.Engine, opts Options) *Server {
	s := &Server{engine: engine}
	if opts.PurchaseRPS > 0 {
		burst := opts.PurchaseBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.PurchaseRPS), burst)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/v1/campaigns", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Route("/{campaignID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.With(s.purchaseLimit).Post("/purchase", s.handlePurchase)
			r.Post("/claim", s.handleClaim)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/close", s.handleClose)
		})
	})

	return r
}

// purchaseLimit rejects purchases above the configured rate with 429.
func (s *Server) purchaseLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Code:    "RATE_LIMITED",
				Message: "too many purchase requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps a protocol error to an HTTP status and a discriminable
// code so clients can branch on the failure kind.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, campaign.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, campaign.ErrCampaignExists):
		status, code = http.StatusConflict, "CAMPAIGN_EXISTS"
	case errors.Is(err, campaign.ErrCampaignNotFound):
		status, code = http.StatusNotFound, "CAMPAIGN_NOT_FOUND"
	case errors.Is(err, campaign.ErrReceiptNotFound):
		status, code = http.StatusNotFound, "RECEIPT_NOT_FOUND"
	case errors.Is(err, campaign.ErrCampaignNotActive):
		status, code = http.StatusConflict, "CAMPAIGN_NOT_ACTIVE"
	case errors.Is(err, campaign.ErrSoldOut):
		status, code = http.StatusConflict, "SOLD_OUT"
	case errors.Is(err, campaign.ErrAlreadyClaimed):
		status, code = http.StatusConflict, "ALREADY_CLAIMED"
	case errors.Is(err, campaign.ErrInsufficientFunds):
		status, code = http.StatusConflict, "INSUFFICIENT_FUNDS"
	case errors.Is(err, campaign.ErrNotPackOwner):
		status, code = http.StatusForbidden, "NOT_PACK_OWNER"
	case errors.Is(err, campaign.ErrUnauthorized):
		status, code = http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, campaign.ErrInvalidProof):
		status, code = http.StatusUnprocessableEntity, "INVALID_PROOF"
	case errors.Is(err, campaign.ErrInvalidMint):
		status, code = http.StatusUnprocessableEntity, "INVALID_MINT"
	}
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}
