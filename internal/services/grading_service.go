package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exercise-service/internal/events"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

// GradingServiceDeps bundles the grading service's collaborators.
type GradingServiceDeps struct {
	Repo         repositories.Repository
	Validator    *validator.Validator
	Publisher    events.EventPublisher
	Access       AccessService
	Presentation PresentationService
	Logger       *slog.Logger

	RetryCooldown time.Duration
}

type gradingService struct {
	repo         repositories.Repository
	validator    *validator.Validator
	publisher    events.EventPublisher
	access       AccessService
	presentation PresentationService
	logger       *slog.Logger

	cooldown time.Duration
	now      func() time.Time
}

func NewGradingService(deps GradingServiceDeps) GradingService {
	if deps.RetryCooldown <= 0 {
		deps.RetryCooldown = defaultRetryCooldown
	}
	return &gradingService{
		repo:         deps.Repo,
		validator:    deps.Validator,
		publisher:    deps.Publisher,
		access:       deps.Access,
		presentation: deps.Presentation,
		logger:       deps.Logger,
		cooldown:     deps.RetryCooldown,
		now:          time.Now,
	}
}

// SubmitQuiz grades one answer vector against the student's recomputed quiz
// presentation. Every submission is recorded, correct or not; a perfect score
// additionally marks the exercise completed. The whole step runs in one
// transaction so a partially graded submission can never be observed.
func (s *gradingService) SubmitQuiz(ctx context.Context, caller Caller, req *SubmitQuizRequest) (*GradingResult, error) {
	s.logger.Info("grading quiz submission", "student_id", caller.ID, "attempt_id", req.AttemptID)

	if errs := s.validator.Validate(req); errs.HasErrors() {
		return nil, errs
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	// Grading always runs against the attempt's own student; elevated course
	// staff may submit on an attempt's behalf.
	owner := caller
	if attempt.StudentID != caller.ID {
		owner = Caller{ID: attempt.StudentID, Role: models.RoleStudent}
	}
	ec, err := loadExerciseContext(ctx, s.repo, attempt.ExerciseID, owner)
	if err != nil {
		return nil, err
	}

	actorRole := ec.Role
	if attempt.StudentID != caller.ID {
		actorRole, err = resolveCourseRole(ctx, s.repo, caller, ec.Week.CourseID)
		if err != nil {
			return nil, err
		}
		if !actorRole.Elevated() {
			return nil, NewPermissionError(caller.ID, req.AttemptID, "attempt", "submit quiz", "not owned by caller")
		}
	}

	now := s.now()
	if err := s.access.CanAccess(now, ec.Week, actorRole, ec.hasAccommodation()); err != nil {
		return nil, err
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

	if len(req.Answers) != len(presentation.Questions) {
		return nil, NewValidationError("answers",
			fmt.Sprintf("expected %d answers, got %d", len(presentation.Questions), len(req.Answers)))
	}

	correctness := score(presentation, req.Answers)
	passed := correctness == 1.0

	rawAnswers, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	newlyCompleted := false
	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		// The attempt is re-read and the state and cooldown gates run inside
		// the transaction, so two concurrent submissions cannot both pass.
		current, err := r.Attempt().GetByID(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to get attempt: %w", err)
		}

		// Re-submitting after completion is allowed and idempotent;
		// submitting before the quiz was entered is not.
		switch current.Status {
		case models.AttemptQuiz, models.AttemptQuizCompleted:
		default:
			return NewInvalidStateError(current.ID, current.Status, "submit quiz")
		}

		// The cooldown is enforced here, not just surfaced to the client, so
		// a direct API caller cannot brute-force the answer key.
		if current.Status == models.AttemptQuiz {
			latest, err := r.Submission().GetLatestByAttempt(ctx, nil, current.ID)
			if err != nil && !repositories.IsNotFoundError(err) {
				return fmt.Errorf("failed to get latest submission: %w", err)
			}
			if err == nil && now.Before(latest.CreatedAt.Add(s.cooldown)) {
				return ErrCooldownActive
			}
		}
		attempt = current

		submission := &models.QuizSubmission{
			AttemptID: attempt.ID,
			Answers:   datatypes.JSON(rawAnswers),
		}
		if err := r.Submission().Create(ctx, nil, submission); err != nil {
			return fmt.Errorf("failed to record submission: %w", err)
		}

		if passed {
			exists, err := r.Completion().Exists(ctx, nil, attempt.StudentID, attempt.ExerciseID)
			if err != nil {
				return fmt.Errorf("failed to check completion: %w", err)
			}
			newlyCompleted = !exists
			if err := r.Completion().Add(ctx, nil, attempt.StudentID, attempt.ExerciseID); err != nil {
				return fmt.Errorf("failed to record completion: %w", err)
			}
			if attempt.Status.CanAdvanceTo(models.AttemptQuizCompleted) {
				attempt.Status = models.AttemptQuizCompleted
				if err := r.Attempt().Update(ctx, nil, attempt); err != nil {
					return fmt.Errorf("failed to update attempt: %w", err)
				}
			}
		}

		payload, _ := json.Marshal(models.QuizLogPayload{
			BatchIndex:  presentation.BatchIndex,
			Questions:   Snapshot(presentation),
			RawAnswers:  req.Answers,
			Correctness: &correctness,
		})
		return r.Log().Append(ctx, nil, &models.LogEntry{
			EntryType:  models.LogQuizSubmission,
			StudentID:  attempt.StudentID,
			ExerciseID: attempt.ExerciseID,
			AttemptID:  attempt.ID,
			Payload:    datatypes.JSON(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quiz graded",
		"attempt_id", attempt.ID,
		"student_id", attempt.StudentID,
		"correctness", correctness,
		"passed", passed)

	s.publishGradingEvents(ctx, attempt, correctness, passed, newlyCompleted)

	result := &GradingResult{
		AttemptID:   attempt.ID,
		Correctness: correctness,
		Passed:      passed,
		Status:      attempt.Status,
	}
	if !passed {
		deadline := now.Add(s.cooldown)
		result.CooldownUntil = &deadline
	}
	return result, nil
}

// score counts satisfied questions against the presentation's answer key.
// Multiple-choice answers are display indices; they satisfy when the index is
// in the question's correct set. Free-text answers satisfy when non-empty.
func score(p *Presentation, answers []string) float64 {
	if len(p.Questions) == 0 {
		return 0
	}
	satisfied := 0
	for i, q := range p.Questions {
		if questionSatisfied(q, answers[i]) {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(p.Questions))
}

func questionSatisfied(q PresentedQuestion, answer string) bool {
	if q.Type == models.FreeText {
		return strings.TrimSpace(answer) != ""
	}
	idx, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return false
	}
	for _, correct := range q.CorrectIndices {
		if idx == correct {
			return true
		}
	}
	return false
}

func (s *gradingService) publishGradingEvents(ctx context.Context, attempt *models.Attempt, correctness float64, passed, newlyCompleted bool) {
	if s.publisher == nil {
		return
	}
	event := &events.Event{
		Type: events.EventQuizSubmitted,
		Data: events.QuizSubmittedEvent{
			AttemptID:   attempt.ID,
			StudentID:   attempt.StudentID,
			ExerciseID:  attempt.ExerciseID,
			Correctness: correctness,
			Passed:      passed,
		},
	}
	if err := s.publisher.Publish(ctx, events.TopicExerciseEvents, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", events.EventQuizSubmitted, "attempt_id", attempt.ID, "error", err)
	}

	if passed && newlyCompleted {
		completed := &events.Event{
			Type: events.EventExerciseCompleted,
			Data: events.ExerciseCompletedEvent{
				StudentID:  attempt.StudentID,
				ExerciseID: attempt.ExerciseID,
			},
		}
		if err := s.publisher.Publish(ctx, events.TopicExerciseEvents, completed); err != nil {
			s.logger.Error("failed to publish event", "event_type", events.EventExerciseCompleted, "attempt_id", attempt.ID, "error", err)
		}
	}
}
