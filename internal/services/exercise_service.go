package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

type exerciseService struct {
	repo       repositories.Repository
	validator  *validator.Validator
	access     AccessService
	assignment AssignmentService
	logger     *slog.Logger
	now        func() time.Time
}

func NewExerciseService(repo repositories.Repository, v *validator.Validator, access AccessService, assignment AssignmentService, logger *slog.Logger) ExerciseService {
	return &exerciseService{
		repo:       repo,
		validator:  v,
		access:     access,
		assignment: assignment,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *exerciseService) Create(ctx context.Context, caller Caller, req *CreateExerciseRequest) (*models.Exercise, error) {
	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, errs
	}

	week, err := s.repo.Week().GetByID(ctx, nil, req.WeekID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week: %w", err)
	}
	role, err := resolveCourseRole(ctx, s.repo, caller, week.CourseID)
	if err != nil {
		return nil, err
	}
	if !role.Elevated() {
		return nil, NewPermissionError(caller.ID, 0, "exercise", "create", "elevated role required")
	}

	exercise := &models.Exercise{
		WeekID:       req.WeekID,
		Title:        req.Title,
		Content:      req.Content,
		ControlGroup: models.ControlGroupPolicy(req.ControlGroup),
		SystemPrompt: req.SystemPrompt,
		FirstMessage: req.FirstMessage,
		Published:    req.Published,
		CreatedBy:    caller.ID,
	}
	if req.ExplainDuration != nil {
		exercise.ExplainDuration = *req.ExplainDuration
	}
	if errs := s.validator.ValidateExercise(exercise); errs.HasErrors() {
		return nil, errs
	}

	var quiz *models.Quiz
	if req.Quiz != nil {
		quiz = buildQuiz(req.Quiz)
		if errs := s.validator.ValidateQuiz(quiz); errs.HasErrors() {
			return nil, errs
		}
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if err := r.Exercise().Create(ctx, nil, exercise); err != nil {
			return fmt.Errorf("failed to create exercise: %w", err)
		}
		if quiz != nil {
			quiz.ExerciseID = exercise.ID
			if err := r.Quiz().Create(ctx, nil, quiz); err != nil {
				return fmt.Errorf("failed to create quiz: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exercise created", "exercise_id", exercise.ID, "week_id", exercise.WeekID, "created_by", caller.ID)
	exercise.Quiz = quiz
	return exercise, nil
}

func (s *exerciseService) Update(ctx context.Context, caller Caller, exerciseID uint, req *UpdateExerciseRequest) (*models.Exercise, error) {
	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, errs
	}

	exercise, err := s.repo.Exercise().GetByID(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	role, err := s.courseRoleForExercise(ctx, caller, exerciseID)
	if err != nil {
		return nil, err
	}
	if !role.Elevated() {
		return nil, NewPermissionError(caller.ID, exerciseID, "exercise", "update", "elevated role required")
	}

	if req.Title != nil {
		exercise.Title = *req.Title
	}
	if req.Content != nil {
		exercise.Content = *req.Content
	}
	if req.ControlGroup != nil {
		exercise.ControlGroup = models.ControlGroupPolicy(*req.ControlGroup)
	}
	if req.SystemPrompt != nil {
		exercise.SystemPrompt = *req.SystemPrompt
	}
	if req.FirstMessage != nil {
		exercise.FirstMessage = *req.FirstMessage
	}
	if req.ExplainDuration != nil {
		exercise.ExplainDuration = *req.ExplainDuration
	}
	if req.Published != nil {
		exercise.Published = *req.Published
	}
	if errs := s.validator.ValidateExercise(exercise); errs.HasErrors() {
		return nil, errs
	}

	var newQuiz *models.Quiz
	if req.Quiz != nil {
		newQuiz = buildQuiz(req.Quiz)
		newQuiz.ExerciseID = exercise.ID
		if errs := s.validator.ValidateQuiz(newQuiz); errs.HasErrors() {
			return nil, errs
		}
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if err := r.Exercise().Update(ctx, nil, exercise); err != nil {
			return fmt.Errorf("failed to update exercise: %w", err)
		}
		if newQuiz == nil {
			return nil
		}
		// Replacing the quiz invalidates presentations students already
		// saw; callers are expected to do this before publication.
		existing, err := r.Quiz().GetByExercise(ctx, nil, exercise.ID)
		if err == nil {
			if err := r.Quiz().Delete(ctx, nil, existing.ID); err != nil {
				return fmt.Errorf("failed to delete quiz: %w", err)
			}
		} else if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get quiz: %w", err)
		}
		if err := r.Quiz().Create(ctx, nil, newQuiz); err != nil {
			return fmt.Errorf("failed to create quiz: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exercise updated", "exercise_id", exercise.ID, "updated_by", caller.ID)
	if newQuiz != nil {
		exercise.Quiz = newQuiz
	}
	return exercise, nil
}

func (s *exerciseService) Delete(ctx context.Context, caller Caller, exerciseID uint) error {
	if caller.Role != models.RoleAdmin {
		return NewPermissionError(caller.ID, exerciseID, "exercise", "delete", "admin role required")
	}
	if _, err := s.repo.Exercise().GetByID(ctx, nil, exerciseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrExerciseNotFound
		}
		return fmt.Errorf("failed to get exercise: %w", err)
	}
	if err := s.repo.Exercise().Delete(ctx, nil, exerciseID); err != nil {
		return fmt.Errorf("failed to delete exercise: %w", err)
	}
	s.logger.Info("exercise deleted", "exercise_id", exerciseID, "deleted_by", caller.ID)
	return nil
}

// GetByID is the authoring view: full exercise including the answer key.
func (s *exerciseService) GetByID(ctx context.Context, caller Caller, exerciseID uint) (*models.Exercise, error) {
	exercise, err := s.repo.Exercise().GetByIDWithQuiz(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}
	role, err := s.courseRoleForExercise(ctx, caller, exerciseID)
	if err != nil {
		return nil, err
	}
	if !role.Elevated() {
		return nil, NewPermissionError(caller.ID, exerciseID, "exercise", "view with answers", "elevated role required")
	}
	return exercise, nil
}

// GetForStudent is the learner view: exercise metadata plus the caller's
// resolved variant and window status, never the answer key.
func (s *exerciseService) GetForStudent(ctx context.Context, caller Caller, exerciseID uint) (*ExerciseResponse, error) {
	ec, err := loadExerciseContext(ctx, s.repo, exerciseID, caller)
	if err != nil {
		return nil, err
	}
	return s.wrapExercise(ec.Exercise, ec.Week, ec.Registration, ec.Role), nil
}

func (s *exerciseService) ListByWeek(ctx context.Context, caller Caller, weekID uint) ([]*ExerciseResponse, error) {
	week, err := s.repo.Week().GetByID(ctx, nil, weekID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week: %w", err)
	}

	registration, role, err := s.courseContext(ctx, caller, week.CourseID)
	if err != nil {
		return nil, err
	}

	exercises, err := s.repo.Exercise().GetByWeek(ctx, nil, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}

	out := make([]*ExerciseResponse, 0, len(exercises))
	for _, exercise := range exercises {
		if !exercise.Published && !role.Elevated() {
			continue
		}
		out = append(out, s.wrapExercise(exercise, week, registration, role))
	}
	return out, nil
}

func (s *exerciseService) ListWeeks(ctx context.Context, caller Caller, courseID uint) ([]*WeekResponse, error) {
	if _, err := s.repo.Course().GetByID(ctx, nil, courseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	registration, role, err := s.courseContext(ctx, caller, courseID)
	if err != nil {
		return nil, err
	}

	weeks, err := s.repo.Week().GetByCourse(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}

	now := s.now()
	hasAccommodation := registration != nil && registration.HasAccommodation
	out := make([]*WeekResponse, len(weeks))
	for i, week := range weeks {
		out[i] = &WeekResponse{
			Week:            week,
			Open:            s.access.CanAccess(now, week, role, hasAccommodation) == nil,
			SolutionVisible: s.access.SolutionVisible(now, week),
		}
	}
	return out, nil
}

// courseContext resolves the caller's registration and effective role in a
// course. Only an admin claim works without a registration.
func (s *exerciseService) courseContext(ctx context.Context, caller Caller, courseID uint) (*models.Registration, models.UserRole, error) {
	registration, err := s.repo.Registration().GetByUserAndCourse(ctx, nil, caller.ID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			if caller.Role == models.RoleAdmin {
				return nil, models.RoleAdmin, nil
			}
			return nil, "", ErrNotEnrolled
		}
		return nil, "", fmt.Errorf("failed to get registration: %w", err)
	}
	return registration, effectiveRole(caller, registration), nil
}

func (s *exerciseService) courseRoleForExercise(ctx context.Context, caller Caller, exerciseID uint) (models.UserRole, error) {
	week, err := s.repo.Week().GetForExercise(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", ErrWeekNotFound
		}
		return "", fmt.Errorf("failed to get week: %w", err)
	}
	return resolveCourseRole(ctx, s.repo, caller, week.CourseID)
}

func (s *exerciseService) wrapExercise(exercise *models.Exercise, week *models.Week, registration *models.Registration, role models.UserRole) *ExerciseResponse {
	now := s.now()
	hasAccommodation := registration != nil && registration.HasAccommodation
	if !role.Elevated() {
		// Prompt internals stay on the authoring side.
		redacted := *exercise
		redacted.SystemPrompt = ""
		redacted.FirstMessage = ""
		redacted.Quiz = nil
		exercise = &redacted
	}
	return &ExerciseResponse{
		Exercise:        exercise,
		Accessible:      s.access.CanAccess(now, week, role, hasAccommodation) == nil,
		SolutionVisible: s.access.SolutionVisible(now, week),
		Variant:         s.assignment.Variant(exercise, registration),
	}
}

// buildQuiz maps a quiz definition onto models, assigning declaration order.
func buildQuiz(def *QuizDefinition) *models.Quiz {
	quiz := &models.Quiz{
		Batches: make([]models.QuizBatch, len(def.Batches)),
	}
	for bi, batchDef := range def.Batches {
		batch := models.QuizBatch{
			Order:     bi,
			Randomize: batchDef.Randomize,
			Questions: make([]models.QuizQuestion, len(batchDef.Questions)),
		}
		for qi, questionDef := range batchDef.Questions {
			question := models.QuizQuestion{
				Order:          qi,
				Type:           models.QuestionType(questionDef.Type),
				Text:           questionDef.Text,
				ShuffleAnswers: true,
				Answers:        make([]models.QuizAnswer, len(questionDef.Answers)),
			}
			if questionDef.ShuffleAnswers != nil {
				question.ShuffleAnswers = *questionDef.ShuffleAnswers
			}
			for ai, answerDef := range questionDef.Answers {
				question.Answers[ai] = models.QuizAnswer{
					Order:   ai,
					Text:    answerDef.Text,
					Correct: answerDef.Correct,
				}
			}
			batch.Questions[qi] = question
		}
		quiz.Batches[bi] = batch
	}
	return quiz
}
