package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type availabilityService interface {
	Declare(ctx context.Context, principal models.Principal, teacherID string, req service.SetAvailabilityRequest) (*models.Availability, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.Availability, error)
}

// AvailabilityHandler exposes teacher availability endpoints.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// List godoc
// @Summary List declared availability of a teacher
// @Description Slots without a declaration are available.
// @Tags Availability
// @Produce json
// @Param teacher_id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/teachers/{teacher_id}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	records, err := h.service.ListForTeacher(c.Request.Context(), c.Param("teacher_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"total": len(records)})
}

// Set godoc
// @Summary Declare availability for one slot
// @Tags Availability
// @Accept json
// @Produce json
// @Param teacher_id path string true "Teacher ID"
// @Param payload body service.SetAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/teachers/{teacher_id}/availability [put]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	record, err := h.service.Declare(c.Request.Context(), principal, c.Param("teacher_id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}
