package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type ExerciseFilters struct {
	WeekID    *uint      `json:"week_id"`
	Published *bool      `json:"published"`
	CreatedBy *string    `json:"created_by"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "created_at", "title"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status     *models.AttemptStatus `json:"status"`
	StudentID  *string               `json:"student_id"`
	ExerciseID *uint                 `json:"exercise_id"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	SortBy     string                `json:"sort_by"`
	SortOrder  string                `json:"sort_order"`
}

type LogFilters struct {
	EntryType  *models.LogEntryType `json:"entry_type"`
	StudentID  *string              `json:"student_id"`
	ExerciseID *uint                `json:"exercise_id"`
	AttemptID  *uint                `json:"attempt_id"`
	DateFrom   *time.Time           `json:"date_from"`
	DateTo     *time.Time           `json:"date_to"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

// ===== ENTITY REPOSITORIES =====

type CourseRepository interface {
	Create(ctx context.Context, tx *gorm.DB, course *models.Course) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	Update(ctx context.Context, tx *gorm.DB, course *models.Course) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.Course, int64, error)
}

type WeekRepository interface {
	Create(ctx context.Context, tx *gorm.DB, week *models.Week) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Week, error)
	Update(ctx context.Context, tx *gorm.DB, week *models.Week) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Week, error)
	GetForExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Week, error)
}

type RegistrationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, reg *models.Registration) error
	Update(ctx context.Context, tx *gorm.DB, reg *models.Registration) error
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Registration, error)
	GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Registration, error)
	GetByGroup(ctx context.Context, tx *gorm.DB, courseID uint, groupName string) ([]*models.Registration, error)
}

type ExerciseRepository interface {
	Create(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error)
	GetByIDWithQuiz(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error)
	Update(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters ExerciseFilters) ([]*models.Exercise, int64, error)
	GetByWeek(ctx context.Context, tx *gorm.DB, weekID uint) ([]*models.Exercise, error)
}

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	// GetByExercise loads the quiz with batches, questions and answers in
	// declared order.
	GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	GetByStudentAndExercise(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (*models.Attempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint, filters AttemptFilters) ([]*models.Attempt, int64, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error
	// GetLatestByAttempt returns the most recent submission or a not-found
	// error when none exists.
	GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.QuizSubmission, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizSubmission, error)
	CountByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)
}

type CompletionRepository interface {
	// Add inserts idempotently: adding an existing (student, exercise)
	// pair is a no-op.
	Add(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) error
	Exists(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (bool, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.CompletedExercise, error)
}

type LogRepository interface {
	// Append inserts a log entry; entries are never updated or deleted.
	Append(ctx context.Context, tx *gorm.DB, entry *models.LogEntry) error
	List(ctx context.Context, tx *gorm.DB, filters LogFilters) ([]*models.LogEntry, int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
