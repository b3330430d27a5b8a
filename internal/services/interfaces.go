package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

// Caller identifies the authenticated user performing an operation. Role is
// the token claim; course-level authorization derives the effective role from
// the caller's registration instead.
type Caller struct {
	ID   string
	Role models.UserRole
}

// ===== Request DTOs =====

type StartAttemptRequest struct {
	ExerciseID uint `json:"exercise_id" validate:"required"`
}

type SubmitQuizRequest struct {
	AttemptID uint     `json:"attempt_id" validate:"required"`
	Answers   []string `json:"answers" validate:"required"`
}

type AnswerDefinition struct {
	Text    string `json:"text" validate:"required"`
	Correct bool   `json:"correct"`
}

type QuestionDefinition struct {
	Type           string             `json:"type" validate:"required,oneof=multiple_choice free_text"`
	Text           string             `json:"text" validate:"required"`
	ShuffleAnswers *bool              `json:"shuffle_answers,omitempty"`
	Answers        []AnswerDefinition `json:"answers,omitempty" validate:"dive"`
}

type BatchDefinition struct {
	Randomize bool                 `json:"randomize"`
	Questions []QuestionDefinition `json:"questions" validate:"required,min=1,dive"`
}

type QuizDefinition struct {
	Batches []BatchDefinition `json:"batches" validate:"required,min=1,dive"`
}

type CreateExerciseRequest struct {
	WeekID          uint            `json:"week_id" validate:"required"`
	Title           string          `json:"title" validate:"required,min=3,max=255"`
	Content         string          `json:"content"`
	ControlGroup    string          `json:"control_group" validate:"required"`
	SystemPrompt    string          `json:"system_prompt"`
	FirstMessage    string          `json:"first_message"`
	ExplainDuration *int            `json:"explain_duration,omitempty" validate:"omitempty,min=1"`
	Published       bool            `json:"published"`
	Quiz            *QuizDefinition `json:"quiz,omitempty"`
}

type UpdateExerciseRequest struct {
	Title           *string         `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Content         *string         `json:"content,omitempty"`
	ControlGroup    *string         `json:"control_group,omitempty"`
	SystemPrompt    *string         `json:"system_prompt,omitempty"`
	FirstMessage    *string         `json:"first_message,omitempty"`
	ExplainDuration *int            `json:"explain_duration,omitempty" validate:"omitempty,min=1"`
	Published       *bool           `json:"published,omitempty"`
	Quiz            *QuizDefinition `json:"quiz,omitempty"`
}

// ===== Response DTOs =====

// StudentQuestion is the answer-key-free view of a presented question.
// Answer options appear in the student's deterministic display order.
type StudentQuestion struct {
	Type    models.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Answers []string            `json:"answers,omitempty"`
}

type AttemptResponse struct {
	*models.Attempt
	Variant         models.ExerciseVariant `json:"variant"`
	BatchIndex      int                    `json:"batch_index"`
	Questions       []StudentQuestion      `json:"questions,omitempty"`
	SolutionVisible bool                   `json:"solution_visible"`
	CorrectIndices  [][]int                `json:"correct_indices,omitempty"`
	LatestAnswers   []string               `json:"latest_answers,omitempty"`
	CooldownUntil   *time.Time             `json:"cooldown_until,omitempty"`
	CanSubmit       bool                   `json:"can_submit"`
}

type ExerciseResponse struct {
	*models.Exercise
	Accessible      bool                   `json:"accessible"`
	SolutionVisible bool                   `json:"solution_visible"`
	Variant         models.ExerciseVariant `json:"variant"`
}

type WeekResponse struct {
	*models.Week
	Open            bool `json:"open"`
	SolutionVisible bool `json:"solution_visible"`
}

type GradingResult struct {
	AttemptID     uint                 `json:"attempt_id"`
	Correctness   float64              `json:"correctness"`
	Passed        bool                 `json:"passed"`
	Status        models.AttemptStatus `json:"status"`
	CooldownUntil *time.Time           `json:"cooldown_until,omitempty"`
}

// ===== Presentation types =====

// PresentedAnswer is one answer option in display order, with its key.
type PresentedAnswer struct {
	Text    string
	Correct bool
}

// PresentedQuestion is one question in display order together with the set of
// display indices that count as correct.
type PresentedQuestion struct {
	Type           models.QuestionType
	Text           string
	Answers        []PresentedAnswer
	CorrectIndices []int
}

// Presentation is the fully resolved per-student quiz view. It is recomputed
// from the stored quiz on every read and never persisted.
type Presentation struct {
	BatchIndex int
	Questions  []PresentedQuestion
}

// ===== Service interfaces =====

// AssignmentService resolves the deterministic per-student experiment split.
type AssignmentService interface {
	Variant(exercise *models.Exercise, registration *models.Registration) models.ExerciseVariant
	BatchIndex(studentID string, exerciseID uint, registration *models.Registration, batchCount int) (int, error)
}

// PresentationService computes the per-student quiz view. Pure with respect to
// storage: the same inputs always produce the same presentation.
type PresentationService interface {
	Present(quiz *models.Quiz, studentID string, exerciseID uint, registration *models.Registration) (*Presentation, error)
}

// AccessService evaluates the exercise access window.
type AccessService interface {
	CanAccess(now time.Time, week *models.Week, role models.UserRole, hasAccommodation bool) error
	SolutionVisible(now time.Time, week *models.Week) bool
}

type AttemptService interface {
	Start(ctx context.Context, caller Caller, req *StartAttemptRequest) (*AttemptResponse, error)
	Get(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error)
	CompleteExercise(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error)
	GoToQuiz(ctx context.Context, caller Caller, attemptID uint) (*AttemptResponse, error)
	Reset(ctx context.Context, caller Caller, attemptID uint) error
	ListByExercise(ctx context.Context, caller Caller, exerciseID uint, filters *repositories.AttemptFilters) ([]*models.Attempt, int64, error)
}

type GradingService interface {
	SubmitQuiz(ctx context.Context, caller Caller, req *SubmitQuizRequest) (*GradingResult, error)
}

type ExerciseService interface {
	Create(ctx context.Context, caller Caller, req *CreateExerciseRequest) (*models.Exercise, error)
	Update(ctx context.Context, caller Caller, exerciseID uint, req *UpdateExerciseRequest) (*models.Exercise, error)
	Delete(ctx context.Context, caller Caller, exerciseID uint) error
	GetByID(ctx context.Context, caller Caller, exerciseID uint) (*models.Exercise, error)
	GetForStudent(ctx context.Context, caller Caller, exerciseID uint) (*ExerciseResponse, error)
	ListByWeek(ctx context.Context, caller Caller, weekID uint) ([]*ExerciseResponse, error)
	ListWeeks(ctx context.Context, caller Caller, courseID uint) ([]*WeekResponse, error)
}

type ExportService interface {
	ExportQuizResults(ctx context.Context, caller Caller, exerciseID uint) ([]byte, error)
	ExportActivityLog(ctx context.Context, caller Caller, exerciseID uint) ([]byte, error)
}

// ===== Collaborators =====

// ChatThreadStarter opens conversation threads for the explain variant.
type ChatThreadStarter interface {
	CreateThread(ctx context.Context, systemPrompt string) (string, error)
	SendMessage(ctx context.Context, threadID, message string) error
}

// Scheduler defers a job without blocking the caller.
type Scheduler interface {
	RunAfter(delay time.Duration, job func())
}

// ServiceManager wires and owns all service instances.
type ServiceManager interface {
	Exercise() ExerciseService
	Attempt() AttemptService
	Grading() GradingService
	Assignment() AssignmentService
	Presentation() PresentationService
	Access() AccessService
	Export() ExportService
	HealthCheck(ctx context.Context) error
	Close() error
}
