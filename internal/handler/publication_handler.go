package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type publicationService interface {
	Publish(ctx context.Context, principal models.Principal) (*models.PublishedVersion, error)
	ActiveVersion(ctx context.Context) (*models.PublishedVersion, error)
	History(ctx context.Context) ([]models.PublishedVersion, error)
	Version(ctx context.Context, id string) (*models.PublishedVersion, error)
	Export(ctx context.Context, id string, format models.ExportFormat) (*service.ExportedFile, error)
}

// PublicationHandler exposes the publication ledger.
type PublicationHandler struct {
	service publicationService
}

// NewPublicationHandler constructs the handler.
func NewPublicationHandler(service publicationService) *PublicationHandler {
	return &PublicationHandler{service: service}
}

// Publish godoc
// @Summary Publish the current assignment book
// @Tags Publications
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetable/publications [post]
func (h *PublicationHandler) Publish(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	version, err := h.service.Publish(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// History godoc
// @Summary List published versions newest first
// @Tags Publications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/publications [get]
func (h *PublicationHandler) History(c *gin.Context) {
	versions, err := h.service.History(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, map[string]interface{}{"total": len(versions)})
}

// Active godoc
// @Summary Active published timetable
// @Tags Publications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/publications/active [get]
func (h *PublicationHandler) Active(c *gin.Context) {
	version, err := h.service.ActiveVersion(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if version == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no timetable has been published yet"))
		return
	}
	response.JSON(c, http.StatusOK, version)
}

// Version godoc
// @Summary Published version with its assignments
// @Tags Publications
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/publications/{id} [get]
func (h *PublicationHandler) Version(c *gin.Context) {
	version, err := h.service.Version(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version)
}

// Export godoc
// @Summary Download a published version
// @Tags Publications
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Version ID"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/publications/{id}/export [get]
func (h *PublicationHandler) Export(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
