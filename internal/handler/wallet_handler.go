package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusbooks/registrar-api/internal/models"
	"github.com/campusbooks/registrar-api/internal/service"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
	"github.com/campusbooks/registrar-api/pkg/response"
)

// WalletHandler exposes wallet endpoints for the calling student.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Get godoc
// @Summary Get the calling student's wallet
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /wallet [get]
func (h *WalletHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	wallet, err := h.wallets.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wallet, nil)
}

// Transactions godoc
// @Summary List the calling student's wallet ledger
// @Tags Wallet
// @Produce json
// @Param type query string false "Filter by entry type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /wallet/transactions [get]
func (h *WalletHandler) Transactions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.WalletTransactionFilter
	filter.Type = models.WalletTransactionType(strings.ToUpper(c.Query("type")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.wallets.Transactions(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Statement godoc
// @Summary Download the wallet ledger as a PDF statement
// @Tags Wallet
// @Produce application/pdf
// @Success 200 {file} binary
// @Router /wallet/statement [get]
func (h *WalletHandler) Statement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pdf, err := h.wallets.StatementPDF(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="wallet-statement.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
