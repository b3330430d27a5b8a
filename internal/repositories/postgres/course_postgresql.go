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

type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (c *CoursePostgreSQL) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Create(course).Error
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) Update(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Save(course).Error
}

func (c *CoursePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := c.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Course{}, id).Error
}

func (c *CoursePostgreSQL) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.Course, int64, error) {
	db := c.getDB(tx)
	var courses []*models.Course
	var total int64

	query := db.WithContext(ctx).Model(&models.Course{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Order("created_at ASC").Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// ===== WEEK REPOSITORY IMPLEMENTATION =====

type WeekPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewWeekPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.WeekRepository {
	return &WeekPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (w *WeekPostgreSQL) Create(ctx context.Context, tx *gorm.DB, week *models.Week) error {
	db := w.getDB(tx)
	return db.WithContext(ctx).Create(week).Error
}

func (w *WeekPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Week, error) {
	db := w.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var week models.Week

	err := w.cacheManager.Week.CacheOrExecute(ctx, cacheKey, &week, cache.WeekCacheConfig.TTL, func() (interface{}, error) {
		var dbWeek models.Week
		if err := db.WithContext(ctx).First(&dbWeek, id).Error; err != nil {
			return nil, err
		}
		return &dbWeek, nil
	})

	return &week, err
}

func (w *WeekPostgreSQL) Update(ctx context.Context, tx *gorm.DB, week *models.Week) error {
	db := w.getDB(tx)
	if err := db.WithContext(ctx).Save(week).Error; err != nil {
		return fmt.Errorf("failed to update week: %w", err)
	}

	w.cacheManager.InvalidateWeek(ctx, week.ID)
	return nil
}

func (w *WeekPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := w.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Week{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete week: %w", err)
	}

	w.cacheManager.InvalidateWeek(ctx, id)
	return nil
}

func (w *WeekPostgreSQL) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Week, error) {
	db := w.getDB(tx)
	var weeks []*models.Week
	if err := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("number ASC").
		Find(&weeks).Error; err != nil {
		return nil, fmt.Errorf("failed to get weeks by course: %w", err)
	}
	return weeks, nil
}

// GetForExercise resolves the week an exercise belongs to in a single query.
func (w *WeekPostgreSQL) GetForExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Week, error) {
	db := w.getDB(tx)
	var week models.Week
	if err := db.WithContext(ctx).
		Joins("JOIN exercises e ON e.week_id = weeks.id").
		Where("e.id = ?", exerciseID).
		First(&week).Error; err != nil {
		return nil, err
	}
	return &week, nil
}

func (w *WeekPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return w.db
}

// ===== REGISTRATION REPOSITORY IMPLEMENTATION =====

type RegistrationPostgreSQL struct {
	db *gorm.DB
}

func NewRegistrationPostgreSQL(db *gorm.DB) repositories.RegistrationRepository {
	return &RegistrationPostgreSQL{db: db}
}

func (r *RegistrationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, reg *models.Registration) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(reg).Error; err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *RegistrationPostgreSQL) Update(ctx context.Context, tx *gorm.DB, reg *models.Registration) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Save(reg).Error
}

func (r *RegistrationPostgreSQL) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Registration, error) {
	db := r.getDB(tx)
	var reg models.Registration
	if err := db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *RegistrationPostgreSQL) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Registration, error) {
	db := r.getDB(tx)
	var regs []*models.Registration
	if err := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("user_id ASC").
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to get registrations by course: %w", err)
	}
	return regs, nil
}

func (r *RegistrationPostgreSQL) GetByGroup(ctx context.Context, tx *gorm.DB, courseID uint, groupName string) ([]*models.Registration, error) {
	db := r.getDB(tx)
	var regs []*models.Registration
	if err := db.WithContext(ctx).
		Where("course_id = ? AND group_name = ?", courseID, groupName).
		Order("group_position ASC").
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to get registrations by group: %w", err)
	}
	return regs, nil
}

func (r *RegistrationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
