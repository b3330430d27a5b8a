package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exercise-service/internal/config"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/services"
	"github.com/SAP-F-2025/exercise-service/internal/utils"
)

type HandlerManager struct {
	exerciseHandler *ExerciseHandler
	attemptHandler  *AttemptHandler
	authMiddleware  *CasdoorAuthMiddleware
	serviceManager  services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		exerciseHandler: NewExerciseHandler(serviceManager.Exercise(), serviceManager.Export(), logger),
		attemptHandler:  NewAttemptHandler(serviceManager.Attempt(), serviceManager.Grading(), logger),
		authMiddleware:  NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
		serviceManager:  serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		admin := hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin)

		// Staff access to course content is decided per course by the
		// services, from the caller's registration role.
		exercises := v1.Group("/exercises")
		{
			exercises.POST("", hm.exerciseHandler.CreateExercise)
			exercises.PUT("/:id", hm.exerciseHandler.UpdateExercise)
			exercises.DELETE("/:id", admin, hm.exerciseHandler.DeleteExercise)
			exercises.GET("/:id", hm.exerciseHandler.GetExercise)
			exercises.GET("/:id/view", hm.exerciseHandler.GetExerciseForStudent)

			exercises.GET("/:id/attempts", hm.attemptHandler.ListAttempts)
			exercises.GET("/:id/export/results", hm.exerciseHandler.ExportResults)
			exercises.GET("/:id/export/log", hm.exerciseHandler.ExportActivityLog)
		}

		weeks := v1.Group("/weeks")
		{
			weeks.GET("/:week_id/exercises", hm.exerciseHandler.ListExercisesByWeek)
		}

		courses := v1.Group("/courses")
		{
			courses.GET("/:course_id/weeks", hm.exerciseHandler.ListWeeks)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/submit", hm.attemptHandler.SubmitQuiz)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/complete-exercise", hm.attemptHandler.CompleteExercise)
			attempts.POST("/:id/quiz", hm.attemptHandler.GoToQuiz)
			attempts.POST("/:id/reset", admin, hm.attemptHandler.ResetAttempt)
		}
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exercise-service",
	})
}
