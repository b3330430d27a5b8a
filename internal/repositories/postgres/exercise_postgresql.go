package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exercise-service/internal/cache"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

type ExercisePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewExercisePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ExerciseRepository {
	return &ExercisePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *ExercisePostgreSQL) Create(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Create(exercise).Error; err != nil {
		return fmt.Errorf("failed to create exercise: %w", err)
	}
	return nil
}

func (e *ExercisePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error) {
	db := e.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var exercise models.Exercise

	err := e.cacheManager.Exercise.CacheOrExecute(ctx, cacheKey, &exercise, cache.ExerciseCacheConfig.TTL, func() (interface{}, error) {
		var dbExercise models.Exercise
		if err := db.WithContext(ctx).First(&dbExercise, id).Error; err != nil {
			return nil, err
		}
		return &dbExercise, nil
	})

	return &exercise, err
}

func (e *ExercisePostgreSQL) GetByIDWithQuiz(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error) {
	db := e.getDB(tx)
	var exercise models.Exercise
	if err := db.WithContext(ctx).
		Preload("Quiz.Batches", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_batches.\"order\" ASC")
		}).
		Preload("Quiz.Batches.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_questions.\"order\" ASC")
		}).
		Preload("Quiz.Batches.Questions.Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_answers.\"order\" ASC")
		}).
		First(&exercise, id).Error; err != nil {
		return nil, err
	}
	return &exercise, nil
}

func (e *ExercisePostgreSQL) Update(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Save(exercise).Error; err != nil {
		return fmt.Errorf("failed to update exercise: %w", err)
	}

	e.cacheManager.InvalidateExercise(ctx, exercise.ID)
	return nil
}

func (e *ExercisePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Exercise{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete exercise: %w", err)
	}

	e.cacheManager.InvalidateExercise(ctx, id)
	return nil
}

func (e *ExercisePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExerciseFilters) ([]*models.Exercise, int64, error) {
	db := e.getDB(tx)
	var exercises []*models.Exercise
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.Exercise{})
	query = e.helpers.ApplyExerciseFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&exercises).Error; err != nil {
		return nil, 0, err
	}

	return exercises, total, nil
}

func (e *ExercisePostgreSQL) GetByWeek(ctx context.Context, tx *gorm.DB, weekID uint) ([]*models.Exercise, error) {
	db := e.getDB(tx)
	var exercises []*models.Exercise
	if err := db.WithContext(ctx).
		Where("week_id = ?", weekID).
		Order("created_at ASC").
		Find(&exercises).Error; err != nil {
		return nil, fmt.Errorf("failed to get exercises by week: %w", err)
	}
	return exercises, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (e *ExercisePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// ===== QUIZ REPOSITORY IMPLEMENTATION =====

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(quiz).Error; err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

func (q *QuizPostgreSQL) GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("exercise:%d", exerciseID)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).
			Preload("Batches", func(db *gorm.DB) *gorm.DB {
				return db.Order("quiz_batches.\"order\" ASC")
			}).
			Preload("Batches.Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("quiz_questions.\"order\" ASC")
			}).
			Preload("Batches.Questions.Answers", func(db *gorm.DB) *gorm.DB {
				return db.Order("quiz_answers.\"order\" ASC")
			}).
			Where("exercise_id = ?", exerciseID).
			First(&dbQuiz).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})

	return &quiz, err
}

func (q *QuizPostgreSQL) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(quiz).Error; err != nil {
		return fmt.Errorf("failed to update quiz: %w", err)
	}

	q.cacheManager.Quiz.Delete(ctx, fmt.Sprintf("exercise:%d", quiz.ExerciseID))
	return nil
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)

	var quiz models.Quiz
	if err := db.WithContext(ctx).First(&quiz, id).Error; err != nil {
		return err
	}

	if err := db.WithContext(ctx).Delete(&models.Quiz{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	q.cacheManager.Quiz.Delete(ctx, fmt.Sprintf("exercise:%d", quiz.ExerciseID))
	return nil
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
