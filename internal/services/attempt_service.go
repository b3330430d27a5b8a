package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exercise-service/internal/events"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

const (
	defaultRetryCooldown     = 60 * time.Second
	defaultFirstMessageDelay = 3 * time.Second
)

// AttemptServiceDeps bundles everything an attempt service needs.
type AttemptServiceDeps struct {
	Repo         repositories.Repository
	Validator    *validator.Validator
	Publisher    events.EventPublisher
	Access       AccessService
	Assignment   AssignmentService
	Presentation PresentationService
	Chat         ChatThreadStarter
	Scheduler    Scheduler
	Logger       *slog.Logger

	// RetryCooldown is the minimum time between quiz submissions.
	RetryCooldown time.Duration
	// FirstMessageDelay is how long after starting an explain attempt the
	// opening chat message is sent.
	FirstMessageDelay time.Duration
}

type attemptService struct {
	repo         repositories.Repository
	validator    *validator.Validator
	publisher    events.EventPublisher
	access       AccessService
	assignment   AssignmentService
	presentation PresentationService
	chat         ChatThreadStarter
	scheduler    Scheduler
	logger       *slog.Logger

	cooldown          time.Duration
	firstMessageDelay time.Duration
	now               func() time.Time
}

func NewAttemptService(deps AttemptServiceDeps) AttemptService {
	if deps.RetryCooldown <= 0 {
		deps.RetryCooldown = defaultRetryCooldown
	}
	if deps.FirstMessageDelay <= 0 {
		deps.FirstMessageDelay = defaultFirstMessageDelay
	}
	return &attemptService{
		repo:              deps.Repo,
		validator:         deps.Validator,
		publisher:         deps.Publisher,
		access:            deps.Access,
		assignment:        deps.Assignment,
		presentation:      deps.Presentation,
		chat:              deps.Chat,
		scheduler:         deps.Scheduler,
		logger:            deps.Logger,
		cooldown:          deps.RetryCooldown,
		firstMessageDelay: deps.FirstMessageDelay,
		now:               time.Now,
	}
}

// exerciseContext is everything window and assignment decisions depend on.
type exerciseContext struct {
	Exercise     *models.Exercise
	Week         *models.Week
	Registration *models.Registration
	Role         models.UserRole
}

// effectiveRole is the role that governs a caller inside one course. Roles are
// granted per registration; only an admin claim carries across courses.
func effectiveRole(caller Caller, registration *models.Registration) models.UserRole {
	if caller.Role == models.RoleAdmin {
		return models.RoleAdmin
	}
	if registration != nil && registration.Role != "" {
		return registration.Role
	}
	return models.RoleStudent
}

// resolveCourseRole looks up the caller's registration in a course and returns
// the effective role. Callers without a registration count as students.
func resolveCourseRole(ctx context.Context, repo repositories.Repository, caller Caller, courseID uint) (models.UserRole, error) {
	if caller.Role == models.RoleAdmin {
		return models.RoleAdmin, nil
	}
	registration, err := repo.Registration().GetByUserAndCourse(ctx, nil, caller.ID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return models.RoleStudent, nil
		}
		return "", fmt.Errorf("failed to get registration: %w", err)
	}
	return effectiveRole(caller, registration), nil
}

// loadExerciseContext resolves the exercise, its week and the caller's
// registration, and derives the role governing the caller in that course.
// Admin claims carry across courses; everyone else needs a registration.
func loadExerciseContext(ctx context.Context, repo repositories.Repository, exerciseID uint, caller Caller) (*exerciseContext, error) {
	exercise, err := repo.Exercise().GetByID(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	week, err := repo.Week().GetForExercise(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrWeekNotFound
		}
		return nil, fmt.Errorf("failed to get week: %w", err)
	}

	registration, err := repo.Registration().GetByUserAndCourse(ctx, nil, caller.ID, week.CourseID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get registration: %w", err)
		}
		registration = nil
	}
	role := effectiveRole(caller, registration)
	if registration == nil && role != models.RoleAdmin {
		return nil, ErrNotEnrolled
	}
	if !exercise.Published && !role.Elevated() {
		return nil, ErrExerciseNotFound
	}

	return &exerciseContext{
		Exercise:     exercise,
		Week:         week,
		Registration: registration,
		Role:         role,
	}, nil
}

func (ec *exerciseContext) hasAccommodation() bool {
	return ec.Registration != nil && ec.Registration.HasAccommodation
}

func (s *attemptService) Start(ctx context.Context, caller Caller, req *StartAttemptRequest) (*AttemptResponse, error) {
	s.logger.Info("starting attempt", "student_id", caller.ID, "exercise_id", req.ExerciseID)

	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, errs
	}

	ec, err := loadExerciseContext(ctx, s.repo, req.ExerciseID, caller)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanAccess(s.now(), ec.Week, ec.Role, ec.hasAccommodation()); err != nil {
		return nil, err
	}

	// Starting twice resumes the existing attempt.
	existing, err := s.repo.Attempt().GetByStudentAndExercise(ctx, nil, caller.ID, req.ExerciseID)
	if err == nil {
		return s.buildResponse(ctx, existing, ec)
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check existing attempt: %w", err)
	}

	variant := s.assignment.Variant(ec.Exercise, ec.Registration)

	// The chat thread is created before the transaction so a broken chat
	// backend never leaves a half-committed attempt behind. An orphaned
	// thread from a later transaction failure is harmless.
	var threadID *string
	if variant == models.VariantExplain && s.chat != nil {
		id, err := s.chat.CreateThread(ctx, ec.Exercise.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat thread: %w", err)
		}
		threadID = &id
	}

	attempt := &models.Attempt{
		ExerciseID: req.ExerciseID,
		StudentID:  caller.ID,
		Status:     models.AttemptExercise,
		ThreadID:   threadID,
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if err := r.Attempt().Create(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}
		payload, _ := json.Marshal(map[string]any{"variant": variant})
		return r.Log().Append(ctx, nil, &models.LogEntry{
			EntryType:  models.LogAttemptStarted,
			StudentID:  caller.ID,
			ExerciseID: req.ExerciseID,
			AttemptID:  attempt.ID,
			Payload:    datatypes.JSON(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventAttemptStarted, attempt)

	if threadID != nil && ec.Exercise.FirstMessage != "" && s.scheduler != nil {
		tid := *threadID
		firstMessage := ec.Exercise.FirstMessage
		s.scheduler.RunAfter(s.firstMessageDelay, func() {
			if err := s.chat.SendMessage(context.Background(), tid, firstMessage); err != nil {
				s.logger.Error("failed to send first chat message",
					"thread_id", tid,
					"attempt_id", attempt.ID,
					"error", err)
			}
		})
	}

	return s.buildResponse(ctx, attempt, ec)
}

func (s *attemptService) Get(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error) {
	attempt, ec, _, err := s.loadOwnedAttempt(ctx, caller, attemptID, "view")
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, attempt, ec)
}

func (s *attemptService) CompleteExercise(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error) {
	attempt, ec, _, err := s.loadOwnedAttempt(ctx, caller, attemptID, "complete exercise")
	if err != nil {
		return nil, err
	}

	switch attempt.Status {
	case models.AttemptExercise:
		// advance below
	case models.AttemptExerciseCompleted:
		return s.buildResponse(ctx, attempt, ec)
	default:
		return nil, NewInvalidStateError(attempt.ID, attempt.Status, "complete exercise")
	}

	attempt.Status = models.AttemptExerciseCompleted
	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt: %w", err)
	}

	s.publishAttemptEvent(ctx, events.EventAttemptAdvanced, attempt)
	return s.buildResponse(ctx, attempt, ec)
}

func (s *attemptService) GoToQuiz(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error) {
	attempt, ec, callerRole, err := s.loadOwnedAttempt(ctx, caller, attemptID, "start quiz")
	if err != nil {
		return nil, err
	}
	if err := s.access.CanAccess(s.now(), ec.Week, callerRole, ec.hasAccommodation()); err != nil {
		return nil, err
	}

	switch attempt.Status {
	case models.AttemptExercise, models.AttemptExerciseCompleted:
		// legal entry points
	case models.AttemptQuiz:
		return s.buildResponse(ctx, attempt, ec)
	default:
		return nil, NewInvalidStateError(attempt.ID, attempt.Status, "start quiz")
	}

	quiz, err := s.repo.Quiz().GetByExercise(ctx, nil, attempt.ExerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	presentation, err := s.presentation.Present(quiz, attempt.StudentID, attempt.ExerciseID, ec.Registration)
	if err != nil {
		return nil, err
	}

	attempt.Status = models.AttemptQuiz
	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if err := r.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}
		payload, _ := json.Marshal(models.QuizLogPayload{
			BatchIndex: presentation.BatchIndex,
			Questions:  Snapshot(presentation),
		})
		return r.Log().Append(ctx, nil, &models.LogEntry{
			EntryType:  models.LogQuizStarted,
			StudentID:  attempt.StudentID,
			ExerciseID: attempt.ExerciseID,
			AttemptID:  attempt.ID,
			Payload:    datatypes.JSON(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.EventQuizStarted, attempt)
	return s.buildResponse(ctx, attempt, ec)
}

// Reset moves an attempt back to the initial state. Administrative correction
// only; this is the single allowed backward transition.
func (s *attemptService) Reset(ctx context.Context, caller Caller, attemptID uint) error {
	if caller.Role != models.RoleAdmin {
		return NewPermissionError(caller.ID, attemptID, "attempt", "reset", "admin role required")
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	s.logger.Info("resetting attempt",
		"attempt_id", attemptID,
		"student_id", attempt.StudentID,
		"from_status", attempt.Status,
		"admin_id", caller.ID)

	attempt.Status = models.AttemptExercise
	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to reset attempt: %w", err)
	}

	s.publishAttemptEvent(ctx, events.EventAttemptReset, attempt)
	return nil
}

func (s *attemptService) ListByExercise(ctx context.Context, caller Caller, exerciseID uint, filters *repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	week, err := s.repo.Week().GetForExercise(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrExerciseNotFound
		}
		return nil, 0, fmt.Errorf("failed to get week: %w", err)
	}
	role, err := resolveCourseRole(ctx, s.repo, caller, week.CourseID)
	if err != nil {
		return nil, 0, err
	}
	if !role.Elevated() {
		return nil, 0, NewPermissionError(caller.ID, exerciseID, "exercise", "list attempts", "elevated role required")
	}
	f := repositories.AttemptFilters{}
	if filters != nil {
		f = *filters
	}
	attempts, total, err := s.repo.Attempt().GetByExercise(ctx, nil, exerciseID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, total, nil
}

// loadOwnedAttempt fetches an attempt and resolves the exercise context for
// the attempt's owner rather than the caller, so elevated viewers see the
// student's actual variant and window. Non-owners need an elevated role in
// the attempt's course; the third return value is the caller's own role there.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, caller Caller, attemptID uint, action string) (*models.Attempt, *exerciseContext, models.UserRole, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, "", ErrAttemptNotFound
		}
		return nil, nil, "", fmt.Errorf("failed to get attempt: %w", err)
	}

	owner := caller
	if attempt.StudentID != caller.ID {
		owner = Caller{ID: attempt.StudentID, Role: models.RoleStudent}
	}
	ec, err := loadExerciseContext(ctx, s.repo, attempt.ExerciseID, owner)
	if err != nil {
		return nil, nil, "", err
	}

	callerRole := ec.Role
	if attempt.StudentID != caller.ID {
		callerRole, err = resolveCourseRole(ctx, s.repo, caller, ec.Week.CourseID)
		if err != nil {
			return nil, nil, "", err
		}
		if !callerRole.Elevated() {
			return nil, nil, "", NewPermissionError(caller.ID, attemptID, "attempt", action, "not owned by caller")
		}
	}
	return attempt, ec, callerRole, nil
}

func (s *attemptService) buildResponse(ctx context.Context, attempt *models.Attempt, ec *exerciseContext) (*AttemptResponse, error) {
	now := s.now()
	resp := &AttemptResponse{
		Attempt:         attempt,
		Variant:         s.assignment.Variant(ec.Exercise, ec.Registration),
		SolutionVisible: s.access.SolutionVisible(now, ec.Week),
	}

	if attempt.Status != models.AttemptQuiz && attempt.Status != models.AttemptQuizCompleted {
		return resp, nil
	}

	quiz, err := s.repo.Quiz().GetByExercise(ctx, nil, attempt.ExerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return resp, nil
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	presentation, err := s.presentation.Present(quiz, attempt.StudentID, attempt.ExerciseID, ec.Registration)
	if err != nil {
		return nil, err
	}
	resp.BatchIndex = presentation.BatchIndex
	resp.Questions = StudentView(presentation)
	if resp.SolutionVisible {
		resp.CorrectIndices = make([][]int, len(presentation.Questions))
		for i, q := range presentation.Questions {
			resp.CorrectIndices[i] = q.CorrectIndices
		}
	}

	latest, err := s.repo.Submission().GetLatestByAttempt(ctx, nil, attempt.ID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get latest submission: %w", err)
	}
	if latest != nil && err == nil {
		var answers []string
		if jsonErr := json.Unmarshal(latest.Answers, &answers); jsonErr == nil {
			resp.LatestAnswers = answers
		}
		if attempt.Status == models.AttemptQuiz {
			deadline := latest.CreatedAt.Add(s.cooldown)
			if now.Before(deadline) {
				resp.CooldownUntil = &deadline
			}
		}
	}

	windowOpen := s.access.CanAccess(now, ec.Week, ec.Role, ec.hasAccommodation()) == nil
	resp.CanSubmit = attempt.Status == models.AttemptQuiz && windowOpen && resp.CooldownUntil == nil

	return resp, nil
}

func (s *attemptService) publishAttemptEvent(ctx context.Context, eventType string, attempt *models.Attempt) {
	if s.publisher == nil {
		return
	}
	event := &events.Event{
		Type: eventType,
		Data: events.AttemptEvent{
			AttemptID:  attempt.ID,
			StudentID:  attempt.StudentID,
			ExerciseID: attempt.ExerciseID,
			Status:     string(attempt.Status),
		},
	}
	if err := s.publisher.Publish(ctx, events.TopicExerciseEvents, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", eventType, "attempt_id", attempt.ID, "error", err)
	}
}
