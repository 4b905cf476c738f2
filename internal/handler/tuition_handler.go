package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusbooks/registrar-api/internal/service"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
	"github.com/campusbooks/registrar-api/pkg/response"
)

// TuitionHandler exposes tuition account reads.
type TuitionHandler struct {
	tuition *service.TuitionService
}

// NewTuitionHandler constructs TuitionHandler.
func NewTuitionHandler(tuition *service.TuitionService) *TuitionHandler {
	return &TuitionHandler{tuition: tuition}
}

// GetForTerm godoc
// @Summary Get the calling student's tuition position for a term
// @Tags Tuition
// @Produce json
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tuition/{termId} [get]
func (h *TuitionHandler) GetForTerm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.tuition.GetForTerm(c.Request.Context(), claims.UserID, c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
