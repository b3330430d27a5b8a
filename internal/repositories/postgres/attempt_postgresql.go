package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exercise-service/internal/cache"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetByStudentAndExercise returns the single attempt a student may hold per
// exercise, or a not-found error when none exists yet.
func (a *AttemptPostgreSQL) GetByStudentAndExercise(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND exercise_id = ?", studentID, exerciseID).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Save(attempt).Error
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.Attempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.ExerciseID = &exerciseID
	return a.List(ctx, tx, filters)
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== SUBMISSION REPOSITORY IMPLEMENTATION =====

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.QuizSubmission, error) {
	db := s.getDB(tx)
	var submission models.QuizSubmission
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at DESC").
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizSubmission, error) {
	db := s.getDB(tx)
	var submissions []*models.QuizSubmission
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get submissions by attempt: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) CountByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	db := s.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuizSubmission{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	return count, err
}

func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// ===== COMPLETION REPOSITORY IMPLEMENTATION =====

type CompletionPostgreSQL struct {
	db *gorm.DB
}

func NewCompletionPostgreSQL(db *gorm.DB) repositories.CompletionRepository {
	return &CompletionPostgreSQL{db: db}
}

// Add records a completion; re-adding the same pair is a no-op so repeated
// perfect submissions stay idempotent.
func (c *CompletionPostgreSQL) Add(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) error {
	db := c.getDB(tx)
	completion := models.CompletedExercise{
		StudentID:  studentID,
		ExerciseID: exerciseID,
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&completion).Error; err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

func (c *CompletionPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.CompletedExercise{}).
		Where("student_id = ? AND exercise_id = ?", studentID, exerciseID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

func (c *CompletionPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.CompletedExercise, error) {
	db := c.getDB(tx)
	var completions []*models.CompletedExercise
	if err := db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at ASC").
		Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("failed to get completions by student: %w", err)
	}
	return completions, nil
}

func (c *CompletionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}
