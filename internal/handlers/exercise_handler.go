package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exercise-service/internal/services"
	"github.com/SAP-F-2025/exercise-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExerciseHandler struct {
	BaseHandler
	exerciseService services.ExerciseService
	exportService   services.ExportService
}

func NewExerciseHandler(
	exerciseService services.ExerciseService,
	exportService services.ExportService,
	logger utils.Logger,
) *ExerciseHandler {
	return &ExerciseHandler{
		BaseHandler:     NewBaseHandler(logger),
		exerciseService: exerciseService,
		exportService:   exportService,
	}
}

// CreateExercise creates an exercise, optionally with its quiz
// @Summary Create exercise
// @Tags exercises
// @Accept json
// @Produce json
// @Param exercise body services.CreateExerciseRequest true "Exercise data"
// @Success 201 {object} models.Exercise
// @Failure 400 {object} ErrorResponse
// @Router /exercises [post]
func (h *ExerciseHandler) CreateExercise(c *gin.Context) {
	h.LogRequest(c, "Creating exercise")

	var req services.CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.Create(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exercise)
}

// UpdateExercise updates an exercise and optionally replaces its quiz
// @Summary Update exercise
// @Tags exercises
// @Accept json
// @Produce json
// @Param id path uint true "Exercise ID"
// @Param exercise body services.UpdateExerciseRequest true "Fields to update"
// @Success 200 {object} models.Exercise
// @Router /exercises/{id} [put]
func (h *ExerciseHandler) UpdateExercise(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating exercise", "exercise_id", id)

	var req services.UpdateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.Update(c.Request.Context(), caller, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exercise)
}

// DeleteExercise removes an exercise
// @Summary Delete exercise
// @Tags exercises
// @Param id path uint true "Exercise ID"
// @Success 204
// @Router /exercises/{id} [delete]
func (h *ExerciseHandler) DeleteExercise(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	if err := h.exerciseService.Delete(c.Request.Context(), caller, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetExercise returns the authoring view including the answer key
// @Summary Get exercise with quiz (staff)
// @Tags exercises
// @Produce json
// @Param id path uint true "Exercise ID"
// @Success 200 {object} models.Exercise
// @Router /exercises/{id} [get]
func (h *ExerciseHandler) GetExercise(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.GetByID(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exercise)
}

// GetExerciseForStudent returns the learner view
// @Summary Get exercise (student view)
// @Tags exercises
// @Produce json
// @Param id path uint true "Exercise ID"
// @Success 200 {object} services.ExerciseResponse
// @Router /exercises/{id}/view [get]
func (h *ExerciseHandler) GetExerciseForStudent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	exercise, err := h.exerciseService.GetForStudent(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exercise)
}

// ListExercisesByWeek lists a week's exercises with access annotations
// @Summary List exercises in a week
// @Tags exercises
// @Produce json
// @Param week_id path uint true "Week ID"
// @Success 200 {object} SuccessResponse
// @Router /weeks/{week_id}/exercises [get]
func (h *ExerciseHandler) ListExercisesByWeek(c *gin.Context) {
	weekID := h.parseIDParam(c, "week_id")
	if weekID == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	exercises, err := h.exerciseService.ListByWeek(c.Request.Context(), caller, weekID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: exercises})
}

// ListWeeks lists a course's weeks with window annotations
// @Summary List weeks in a course
// @Tags courses
// @Produce json
// @Param course_id path uint true "Course ID"
// @Success 200 {object} SuccessResponse
// @Router /courses/{course_id}/weeks [get]
func (h *ExerciseHandler) ListWeeks(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	weeks, err := h.exerciseService.ListWeeks(c.Request.Context(), caller, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: weeks})
}

// ExportResults downloads the exercise's results as a workbook
// @Summary Export quiz results
// @Tags exercises
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exercise ID"
// @Success 200 {file} binary
// @Router /exercises/{id}/export/results [get]
func (h *ExerciseHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	data, err := h.exportService.ExportQuizResults(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=exercise_%d_results.xlsx", id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// ExportActivityLog downloads the exercise's audit trail as a workbook
// @Summary Export activity log
// @Tags exercises
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exercise ID"
// @Success 200 {file} binary
// @Router /exercises/{id}/export/log [get]
func (h *ExerciseHandler) ExportActivityLog(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	data, err := h.exportService.ExportActivityLog(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=exercise_%d_log.xlsx", id))
	c.Data(http.StatusOK, xlsxContentType, data)
}
