package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/services"
	"github.com/SAP-F-2025/exercise-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	gradingService services.GradingService
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	gradingService services.GradingService,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		gradingService: gradingService,
	}
}

// StartAttempt starts (or resumes) the caller's attempt on an exercise
// @Summary Start exercise attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting exercise attempt")

	var req services.StartAttemptRequest
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

	attempt, err := h.attemptService.Start(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// GetAttempt returns the attempt with the caller's current quiz view
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// CompleteExercise marks the reading or chat phase as done
// @Summary Complete exercise phase
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/complete-exercise [post]
func (h *AttemptHandler) CompleteExercise(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Completing exercise phase", "attempt_id", id)

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.CompleteExercise(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GoToQuiz advances the attempt into the quiz phase
// @Summary Enter quiz phase
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/quiz [post]
func (h *AttemptHandler) GoToQuiz(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Entering quiz phase", "attempt_id", id)

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GoToQuiz(c.Request.Context(), caller, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitQuiz grades the caller's answer vector
// @Summary Submit quiz answers
// @Tags attempts
// @Accept json
// @Produce json
// @Param submission body services.SubmitQuizRequest true "Answers in display order"
// @Success 200 {object} services.GradingResult
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /attempts/submit [post]
func (h *AttemptHandler) SubmitQuiz(c *gin.Context) {
	h.LogRequest(c, "Submitting quiz answers")

	var req services.SubmitQuizRequest
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

	result, err := h.gradingService.SubmitQuiz(c.Request.Context(), caller, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResetAttempt resets an attempt to the initial state (admin only)
// @Summary Reset attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Router /attempts/{id}/reset [post]
func (h *AttemptHandler) ResetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	if err := h.attemptService.Reset(c.Request.Context(), caller, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAttempts lists attempts on an exercise (staff only)
// @Summary List attempts for an exercise
// @Tags attempts
// @Produce json
// @Param id path uint true "Exercise ID"
// @Success 200 {object} SuccessResponse
// @Router /exercises/{id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	exerciseID := h.parseIDParam(c, "id")
	if exerciseID == 0 {
		return
	}

	caller, ok := h.currentCaller(c)
	if !ok {
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, total, err := h.attemptService.ListByExercise(c.Request.Context(), caller, exerciseID, &filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  attempts,
		"total": total,
	})
}

func (h *AttemptHandler) parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.AttemptFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}

	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}
