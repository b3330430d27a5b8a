package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exercise-service/internal/events"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

func newGradingServiceForTest(f *fixture) (*gradingService, *events.MockEventPublisher) {
	logger := slog.Default()
	publisher := events.NewMockEventPublisher(logger)
	assignment := NewAssignmentService(logger)
	svc := NewGradingService(GradingServiceDeps{
		Repo:         f.repo,
		Validator:    validator.New(),
		Publisher:    publisher,
		Access:       NewAccessService(logger),
		Presentation: NewPresentationService(assignment, logger),
		Logger:       logger,
	}).(*gradingService)
	return svc, publisher
}

func quizAttempt(f *fixture) *models.Attempt {
	attempt := &models.Attempt{ID: 500, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuiz}
	f.repo.attempts[attempt.ID] = attempt
	return attempt
}

func TestSubmitQuiz(t *testing.T) {
	ctx := context.Background()

	t.Run("perfect score completes the attempt", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		// Shuffling is off in the fixture, so index 0 is correct everywhere.
		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if err != nil {
			t.Fatalf("SubmitQuiz failed: %v", err)
		}
		if result.Correctness != 1.0 || !result.Passed {
			t.Errorf("expected full score, got correctness=%v passed=%v", result.Correctness, result.Passed)
		}
		if result.Status != models.AttemptQuizCompleted {
			t.Errorf("expected quizCompleted, got %q", result.Status)
		}
		if result.CooldownUntil != nil {
			t.Error("no cooldown after a passing submission")
		}

		done, _ := f.repo.Completion().Exists(ctx, nil, "student-1", f.exercise.ID)
		if !done {
			t.Error("expected completion to be recorded")
		}
		if len(f.repo.submissions) != 1 {
			t.Errorf("expected one stored submission, got %d", len(f.repo.submissions))
		}

		var entry *models.LogEntry
		for _, e := range f.repo.logs {
			if e.EntryType == models.LogQuizSubmission {
				entry = e
			}
		}
		if entry == nil {
			t.Fatal("expected quizSubmission log entry")
		}
		var payload models.QuizLogPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			t.Fatalf("cannot decode payload: %v", err)
		}
		if payload.Correctness == nil || *payload.Correctness != 1.0 {
			t.Errorf("expected logged correctness 1.0, got %v", payload.Correctness)
		}
		if len(payload.RawAnswers) != 2 {
			t.Errorf("expected raw answers in the log, got %v", payload.RawAnswers)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 2 {
			t.Fatalf("expected quiz.submitted and exercise.completed, got %+v", published)
		}
		if published[0].Type != events.EventQuizSubmitted || published[1].Type != events.EventExerciseCompleted {
			t.Errorf("unexpected event sequence: %s, %s", published[0].Type, published[1].Type)
		}
	})

	t.Run("wrong answers keep the attempt in quiz state", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"1", "2"}})
		if err != nil {
			t.Fatalf("SubmitQuiz failed: %v", err)
		}
		if result.Correctness != 0 || result.Passed {
			t.Errorf("expected zero score, got correctness=%v passed=%v", result.Correctness, result.Passed)
		}
		if result.Status != models.AttemptQuiz {
			t.Errorf("expected attempt to stay in quiz state, got %q", result.Status)
		}
		if result.CooldownUntil == nil {
			t.Error("expected a cooldown deadline after a failing submission")
		}
		if len(f.repo.submissions) != 1 {
			t.Errorf("failing submissions must still be recorded, got %d", len(f.repo.submissions))
		}
		done, _ := f.repo.Completion().Exists(ctx, nil, "student-1", f.exercise.ID)
		if done {
			t.Error("no completion for a failing submission")
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventQuizSubmitted {
			t.Fatalf("expected only quiz.submitted, got %+v", published)
		}
	})

	t.Run("partial credit is fractional", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "2"}})
		if err != nil {
			t.Fatalf("SubmitQuiz failed: %v", err)
		}
		if result.Correctness != 0.5 {
			t.Errorf("expected correctness 0.5, got %v", result.Correctness)
		}
		if result.Passed {
			t.Error("partial score must not pass")
		}
	})

	t.Run("cooldown blocks rapid retries", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		if _, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"1", "1"}}); err != nil {
			t.Fatalf("first submit failed: %v", err)
		}

		_, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if !errors.Is(err, ErrCooldownActive) {
			t.Fatalf("expected ErrCooldownActive, got %v", err)
		}

		// Once the cooldown has elapsed the retry goes through.
		svc.now = func() time.Time { return time.Now().Add(2 * defaultRetryCooldown) }
		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if err != nil {
			t.Fatalf("retry after cooldown failed: %v", err)
		}
		if !result.Passed {
			t.Error("expected retry to pass")
		}
	})

	t.Run("resubmission after completion is idempotent", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		if _, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}}); err != nil {
			t.Fatalf("first submit failed: %v", err)
		}
		publisher.ClearEvents()

		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if err != nil {
			t.Fatalf("second submit failed: %v", err)
		}
		if result.Status != models.AttemptQuizCompleted {
			t.Errorf("status must not regress, got %q", result.Status)
		}
		if len(f.repo.completions["student-1"]) != 1 {
			t.Errorf("expected a single completion entry, got %d", len(f.repo.completions["student-1"]))
		}

		// No second exercise.completed for an already completed exercise.
		for _, e := range publisher.GetPublishedEvents() {
			if e.Type == events.EventExerciseCompleted {
				t.Error("exercise.completed must only fire on first completion")
			}
		}
	})

	t.Run("answer count must match the presentation", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		_, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0"}})
		var validationErrs ValidationErrors
		if !errors.As(err, &validationErrs) {
			t.Fatalf("expected ValidationErrors, got %v", err)
		}
		if len(f.repo.submissions) != 0 {
			t.Error("mismatched submissions must not be recorded")
		}
	})

	t.Run("submission requires the quiz state", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := &models.Attempt{ID: 510, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptExercise}
		f.repo.attempts[attempt.ID] = attempt

		_, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		var stateErr *InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected InvalidStateError, got %v", err)
		}
	})

	t.Run("other students may not submit", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		_, err := svc.SubmitQuiz(ctx, Caller{ID: "intruder", Role: models.RoleStudent}, &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
	})

	t.Run("course staff may submit on the student's behalf", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		result, err := svc.SubmitQuiz(ctx, ta(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if err != nil {
			t.Fatalf("SubmitQuiz failed: %v", err)
		}
		if !result.Passed {
			t.Errorf("expected pass, got correctness %v", result.Correctness)
		}
		// Grading runs against the attempt's student, not the caller.
		done, _ := f.repo.Completion().Exists(ctx, nil, "student-1", f.exercise.ID)
		if !done {
			t.Error("completion must be recorded for the attempt's student")
		}
		if len(f.repo.logs) != 1 || f.repo.logs[0].StudentID != "student-1" {
			t.Error("log entry must reference the attempt's student")
		}
	})

	t.Run("submission landing mid-flight trips the cooldown", func(t *testing.T) {
		f := newFixture()
		attempt := quizAttempt(f)
		repo := &racingRepo{fakeRepository: f.repo}
		repo.before = func() {
			f.repo.submissions = append(f.repo.submissions, &models.QuizSubmission{
				ID:        990,
				AttemptID: attempt.ID,
				Answers:   datatypes.JSON(`["1","1"]`),
				CreatedAt: time.Now(),
			})
		}
		logger := slog.Default()
		assignment := NewAssignmentService(logger)
		svc := NewGradingService(GradingServiceDeps{
			Repo:         repo,
			Validator:    validator.New(),
			Publisher:    events.NewMockEventPublisher(logger),
			Access:       NewAccessService(logger),
			Presentation: NewPresentationService(assignment, logger),
			Logger:       logger,
		}).(*gradingService)

		_, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if !errors.Is(err, ErrCooldownActive) {
			t.Fatalf("expected ErrCooldownActive, got %v", err)
		}
		if len(f.repo.submissions) != 1 {
			t.Errorf("the losing submission must not be recorded, got %d", len(f.repo.submissions))
		}
	})

	t.Run("closed window rejects submissions", func(t *testing.T) {
		f := newFixture()
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)
		svc.now = func() time.Time { return f.week.EndDate.Add(time.Minute) }

		_, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "0"}})
		if !errors.Is(err, ErrAccessWindowClosed) {
			t.Fatalf("expected ErrAccessWindowClosed, got %v", err)
		}
	})

	t.Run("free text counts when non-empty", func(t *testing.T) {
		f := newFixture()
		// Replace the second question of every batch with a free-text one.
		for bi := range f.quiz.Batches {
			f.quiz.Batches[bi].Questions[1] = models.QuizQuestion{
				Order: 1,
				Type:  models.FreeText,
				Text:  "explain your reasoning",
			}
		}
		svc, _ := newGradingServiceForTest(f)
		attempt := quizAttempt(f)

		result, err := svc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: attempt.ID, Answers: []string{"0", "because of transitivity"}})
		if err != nil {
			t.Fatalf("SubmitQuiz failed: %v", err)
		}
		if !result.Passed {
			t.Errorf("expected pass with non-empty free text, got correctness %v", result.Correctness)
		}
	})
}

func TestGradingMatchesQuizStartSnapshot(t *testing.T) {
	// The presented order recorded at quiz start must equal the order used
	// for grading, otherwise index answers would be judged against the
	// wrong key.
	ctx := context.Background()
	f := newFixture()
	for bi := range f.quiz.Batches {
		f.quiz.Batches[bi].Randomize = true
		for qi := range f.quiz.Batches[bi].Questions {
			f.quiz.Batches[bi].Questions[qi].ShuffleAnswers = true
		}
	}

	attemptSvc, _ := newAttemptServiceForTest(f, nil)
	gradingSvc, _ := newGradingServiceForTest(f)

	started, err := attemptSvc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := attemptSvc.GoToQuiz(ctx, student1(), started.ID); err != nil {
		t.Fatalf("GoToQuiz failed: %v", err)
	}

	var startPayload models.QuizLogPayload
	for _, e := range f.repo.logs {
		if e.EntryType == models.LogQuizStarted {
			if err := json.Unmarshal(e.Payload, &startPayload); err != nil {
				t.Fatalf("cannot decode quizStarted payload: %v", err)
			}
		}
	}

	// Answer using the correct display indices recorded at quiz start.
	answers := make([]string, len(startPayload.Questions))
	for i, q := range startPayload.Questions {
		if len(q.CorrectIndices) != 1 {
			t.Fatalf("question %d: expected exactly one correct index, got %v", i, q.CorrectIndices)
		}
		answers[i] = strconv.Itoa(q.CorrectIndices[0])
	}

	result, err := gradingSvc.SubmitQuiz(ctx, student1(), &SubmitQuizRequest{AttemptID: started.ID, Answers: answers})
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}
	if !result.Passed {
		t.Errorf("answers matching the start snapshot must pass, got correctness %v", result.Correctness)
	}
}
