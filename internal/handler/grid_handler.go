package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type gridSource interface {
	Response() models.GridResponse
}

// GridHandler exposes the fixed weekly time grid.
type GridHandler struct {
	grid gridSource
}

// NewGridHandler constructs the handler.
func NewGridHandler(grid gridSource) *GridHandler {
	return &GridHandler{grid: grid}
}

// Grid godoc
// @Summary Weekly time grid
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/grid [get]
func (h *GridHandler) Grid(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.grid.Response())
}
