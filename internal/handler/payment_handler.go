package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"

	"github.com/campusbooks/registrar-api/internal/service"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
	"github.com/campusbooks/registrar-api/pkg/response"
)

type depositService interface {
	Deposit(ctx context.Context, req service.DepositRequest) (*service.DepositResult, error)
}

// PaymentHandler receives payment-provider callbacks and settles them as
// wallet deposits.
type PaymentHandler struct {
	wallets       depositService
	webhookSecret string
}

// NewPaymentHandler constructs PaymentHandler. An empty secret disables
// signature verification.
func NewPaymentHandler(wallets depositService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{wallets: wallets, webhookSecret: webhookSecret}
}

type depositCallbackRequest struct {
	StudentID   string          `json:"student_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	ExternalRef string          `json:"external_ref" binding:"required"`
	Description string          `json:"description"`
}

// Callback godoc
// @Summary Settle a payment-provider callback as a wallet deposit
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Signature header string false "HMAC-SHA256 of the raw body"
// @Param payload body depositCallbackRequest true "Callback payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable request body"))
		return
	}
	if h.webhookSecret != "" && !h.verifySignature(body, c.GetHeader("X-Signature")) {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid callback signature"))
		return
	}

	var req depositCallbackRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid callback payload"))
		return
	}

	result, err := h.wallets.Deposit(c.Request.Context(), service.DepositRequest{
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		ExternalRef: req.ExternalRef,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *PaymentHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
