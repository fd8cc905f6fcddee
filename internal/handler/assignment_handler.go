package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type assignmentService interface {
	Propose(ctx context.Context, req service.ProposeAssignmentRequest) (*models.Assignment, error)
	Update(ctx context.Context, id string, req service.UpdateAssignmentRequest) (*models.Assignment, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Assignment, error)
	ForGroup(ctx context.Context, groupID string) ([]models.Assignment, error)
	ForTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error)
	Usage(ctx context.Context, kind models.EntityKind, id string) (*models.EntityUsage, error)
}

// AssignmentHandler exposes the live assignment book.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// Propose godoc
// @Summary Propose an assignment
// @Description Rejected with 409 when the group or teacher is already booked or the teacher is unavailable.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.ProposeAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/assignments [post]
func (h *AssignmentHandler) Propose(c *gin.Context) {
	var req service.ProposeAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Propose(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment)
}

// Update godoc
// @Summary Move or reassign an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.UpdateAssignmentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/assignments/{id} [patch]
func (h *AssignmentHandler) Update(c *gin.Context) {
	var req service.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment)
}

// Remove godoc
// @Summary Remove an assignment
// @Tags Assignments
// @Param id path string true "Assignment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /timetable/assignments/{id} [delete]
func (h *AssignmentHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ForGroup godoc
// @Summary Weekly assignments of a student group
// @Tags Assignments
// @Produce json
// @Param group_id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/groups/{group_id}/assignments [get]
func (h *AssignmentHandler) ForGroup(c *gin.Context) {
	items, err := h.service.ForGroup(c.Request.Context(), c.Param("group_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// ForTeacher godoc
// @Summary Weekly assignments of a teacher
// @Tags Assignments
// @Produce json
// @Param teacher_id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/teachers/{teacher_id}/assignments [get]
func (h *AssignmentHandler) ForTeacher(c *gin.Context) {
	items, err := h.service.ForTeacher(c.Request.Context(), c.Param("teacher_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// Usage godoc
// @Summary Whether a teacher, group or subject is referenced by assignments
// @Tags Assignments
// @Produce json
// @Param kind path string true "teacher, group or subject"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/entities/{kind}/{id}/usage [get]
func (h *AssignmentHandler) Usage(c *gin.Context) {
	kind := models.EntityKind(c.Param("kind"))
	if !kind.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown entity kind %q", kind)))
		return
	}
	usage, err := h.service.Usage(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, usage)
}
