package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

// TransferHandler exposes the purchase and gift endpoints.
type TransferHandler struct {
	Engine  TransferEngine
	Limiter RateLimiter
}

// Purchase handles POST /api/v1/videos/{id}/purchase.
func (h TransferHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Engine == nil {
		logger.Error("transfer engine unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "purchases are unavailable")
		return
	}
	if !allowRequest(h.Limiter, r, "transfer") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many transfer requests, try again later")
		return
	}

	videoID := r.PathValue("id")
	result, err := h.Engine.Purchase(ctx, accountID, videoID)
	if err != nil {
		writeTransferError(w, r, err, "purchase failed")
		return
	}

	respondJSON(ctx, w, http.StatusOK, purchaseResponse{
		NewBalance: result.NewBalance,
		AccessURL:  result.AccessURL,
		Purchase: purchaseView{
			ID:        result.Purchase.ID,
			VideoID:   result.Purchase.VideoID,
			Amount:    result.Purchase.Amount,
			CreatedAt: result.Purchase.CreatedAt,
		},
	})
}

// Gift handles POST /api/v1/videos/{id}/gift.
func (h TransferHandler) Gift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Engine == nil {
		logger.Error("transfer engine unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "gifts are unavailable")
		return
	}
	if !allowRequest(h.Limiter, r, "transfer") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many transfer requests, try again later")
		return
	}

	var req giftRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		logger.Warn("invalid gift payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	videoID := r.PathValue("id")
	result, err := h.Engine.Gift(ctx, accountID, videoID, req.Amount)
	if err != nil {
		writeTransferError(w, r, err, "gift failed")
		return
	}

	respondJSON(ctx, w, http.StatusOK, giftResponse{
		NewBalance: result.NewBalance,
		Gift: giftView{
			ID:         result.Gift.ID,
			VideoID:    result.Gift.VideoID,
			ReceiverID: result.Gift.ReceiverID,
			Amount:     result.Gift.Amount,
			CreatedAt:  result.Gift.CreatedAt,
		},
	})
}

func writeTransferError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	ctx := r.Context()
	status := transferStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("transfer failed", "error", err, "status", status)
	}
	respondError(ctx, w, status, wallet.Message(err, fallback))
}

func transferStatus(err error) int {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrInvalidOperation), errors.Is(err, wallet.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, wallet.ErrInfrastructure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type giftRequest struct {
	Amount int64 `json:"amount"`
}

type purchaseView struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type purchaseResponse struct {
	NewBalance int64        `json:"newBalance"`
	AccessURL  string       `json:"accessUrl,omitempty"`
	Purchase   purchaseView `json:"purchase"`
}

type giftView struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"videoId"`
	ReceiverID string    `json:"receiverId"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type giftResponse struct {
	NewBalance int64    `json:"newBalance"`
	Gift       giftView `json:"gift"`
}
