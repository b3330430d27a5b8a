package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/events"
	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

func newAttemptServiceForTest(f *fixture, chat ChatThreadStarter) (*attemptService, *events.MockEventPublisher) {
	logger := slog.Default()
	publisher := events.NewMockEventPublisher(logger)
	assignment := NewAssignmentService(logger)
	svc := NewAttemptService(AttemptServiceDeps{
		Repo:         f.repo,
		Validator:    validator.New(),
		Publisher:    publisher,
		Access:       NewAccessService(logger),
		Assignment:   assignment,
		Presentation: NewPresentationService(assignment, logger),
		Chat:         chat,
		Scheduler:    immediateScheduler{},
		Logger:       logger,
	}).(*attemptService)
	return svc, publisher
}

func TestStartAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("creates attempt with log entry and event", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newAttemptServiceForTest(f, nil)

		resp, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if resp.Status != models.AttemptExercise {
			t.Errorf("expected status %q, got %q", models.AttemptExercise, resp.Status)
		}
		if resp.Variant != models.VariantReading {
			t.Errorf("expected reading variant for control group all, got %q", resp.Variant)
		}

		if len(f.repo.logs) != 1 || f.repo.logs[0].EntryType != models.LogAttemptStarted {
			t.Fatalf("expected one attemptStarted log entry, got %d entries", len(f.repo.logs))
		}
		if f.repo.logs[0].AttemptID != resp.ID {
			t.Errorf("log entry references attempt %d, want %d", f.repo.logs[0].AttemptID, resp.ID)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventAttemptStarted {
			t.Fatalf("expected one attempt.started event, got %+v", published)
		}
	})

	t.Run("second start resumes the existing attempt", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)

		first, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("first Start failed: %v", err)
		}
		second, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("second Start failed: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected same attempt, got %d and %d", first.ID, second.ID)
		}
		if len(f.repo.attempts) != 1 {
			t.Errorf("expected one stored attempt, got %d", len(f.repo.attempts))
		}
	})

	t.Run("rejects students who are not enrolled", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)

		_, err := svc.Start(ctx, Caller{ID: "stranger", Role: models.RoleStudent}, &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if !errors.Is(err, ErrNotEnrolled) {
			t.Errorf("expected ErrNotEnrolled, got %v", err)
		}
	})

	t.Run("hides unpublished exercises from students", func(t *testing.T) {
		f := newFixture()
		f.exercise.Published = false
		svc, _ := newAttemptServiceForTest(f, nil)

		_, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if !errors.Is(err, ErrExerciseNotFound) {
			t.Errorf("expected ErrExerciseNotFound, got %v", err)
		}
	})

	t.Run("rejects starts after the window closed", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		svc.now = func() time.Time { return f.week.EndDate.Add(time.Minute) }

		_, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if !errors.Is(err, ErrAccessWindowClosed) {
			t.Errorf("expected ErrAccessWindowClosed, got %v", err)
		}
	})

	t.Run("accommodation extends the window past the end date", func(t *testing.T) {
		f := newFixture()
		f.registration.HasAccommodation = true
		svc, _ := newAttemptServiceForTest(f, nil)
		svc.now = func() time.Time { return f.week.EndDate.Add(time.Minute) }

		if _, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID}); err != nil {
			t.Errorf("expected accommodated start to succeed, got %v", err)
		}
	})

	t.Run("explain variant creates a chat thread and sends the opener", func(t *testing.T) {
		f := newFixture()
		f.exercise.ControlGroup = models.ControlGroupNone
		f.exercise.SystemPrompt = "You are a tutor."
		f.exercise.FirstMessage = "Hello, explain the reading to me."
		chat := &fakeChat{}
		svc, _ := newAttemptServiceForTest(f, chat)

		resp, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if resp.Variant != models.VariantExplain {
			t.Fatalf("expected explain variant, got %q", resp.Variant)
		}
		if resp.ThreadID == nil || *resp.ThreadID != "thread-1" {
			t.Errorf("expected thread id to be stored, got %v", resp.ThreadID)
		}
		if chat.threads != 1 {
			t.Errorf("expected one thread, got %d", chat.threads)
		}
		if len(chat.messages) != 1 || chat.messages[0] != f.exercise.FirstMessage {
			t.Errorf("expected first message to be sent, got %v", chat.messages)
		}
	})

	t.Run("failing chat backend aborts the start", func(t *testing.T) {
		f := newFixture()
		f.exercise.ControlGroup = models.ControlGroupNone
		chat := &fakeChat{failNext: true}
		svc, _ := newAttemptServiceForTest(f, chat)

		if _, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID}); err == nil {
			t.Fatal("expected error when thread creation fails")
		}
		if len(f.repo.attempts) != 0 {
			t.Errorf("expected no attempt to be stored, got %d", len(f.repo.attempts))
		}
	})
}

func TestCompleteExercise(t *testing.T) {
	ctx := context.Background()

	t.Run("advances to exerciseCompleted", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		started, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		resp, err := svc.CompleteExercise(ctx, student1(), started.ID)
		if err != nil {
			t.Fatalf("CompleteExercise failed: %v", err)
		}
		if resp.Status != models.AttemptExerciseCompleted {
			t.Errorf("expected exerciseCompleted, got %q", resp.Status)
		}

		// Completing again is a no-op.
		again, err := svc.CompleteExercise(ctx, student1(), started.ID)
		if err != nil {
			t.Fatalf("second CompleteExercise failed: %v", err)
		}
		if again.Status != models.AttemptExerciseCompleted {
			t.Errorf("expected exerciseCompleted after repeat, got %q", again.Status)
		}
	})

	t.Run("rejected once the quiz has started", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 900, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuiz}
		f.repo.attempts[attempt.ID] = attempt

		_, err := svc.CompleteExercise(ctx, student1(), attempt.ID)
		var stateErr *InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected InvalidStateError, got %v", err)
		}
	})

	t.Run("foreign attempts are protected", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 901, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptExercise}
		f.repo.attempts[attempt.ID] = attempt

		_, err := svc.CompleteExercise(ctx, Caller{ID: "intruder", Role: models.RoleStudent}, attempt.ID)
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
	})
}

func TestGoToQuiz(t *testing.T) {
	ctx := context.Background()

	t.Run("enters the quiz and snapshots the presented order", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newAttemptServiceForTest(f, nil)
		started, err := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		publisher.ClearEvents()

		resp, err := svc.GoToQuiz(ctx, student1(), started.ID)
		if err != nil {
			t.Fatalf("GoToQuiz failed: %v", err)
		}
		if resp.Status != models.AttemptQuiz {
			t.Errorf("expected quiz status, got %q", resp.Status)
		}
		if len(resp.Questions) != 2 {
			t.Fatalf("expected 2 presented questions, got %d", len(resp.Questions))
		}
		if resp.CorrectIndices != nil {
			t.Error("correct indices must not be exposed while the window is open")
		}

		var entry *models.LogEntry
		for _, e := range f.repo.logs {
			if e.EntryType == models.LogQuizStarted {
				entry = e
			}
		}
		if entry == nil {
			t.Fatal("expected a quizStarted log entry")
		}
		var payload models.QuizLogPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			t.Fatalf("cannot decode payload: %v", err)
		}
		if len(payload.Questions) != 2 {
			t.Errorf("expected snapshot of 2 questions, got %d", len(payload.Questions))
		}
		if payload.BatchIndex != resp.BatchIndex {
			t.Errorf("snapshot batch %d does not match response batch %d", payload.BatchIndex, resp.BatchIndex)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventQuizStarted {
			t.Fatalf("expected one quiz.started event, got %+v", published)
		}
	})

	t.Run("allowed directly from the exercise state", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		started, _ := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})

		if _, err := svc.GoToQuiz(ctx, student1(), started.ID); err != nil {
			t.Errorf("expected GoToQuiz from exercise state to succeed, got %v", err)
		}
	})

	t.Run("repeat call keeps the quiz state", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		started, _ := svc.Start(ctx, student1(), &StartAttemptRequest{ExerciseID: f.exercise.ID})
		if _, err := svc.GoToQuiz(ctx, student1(), started.ID); err != nil {
			t.Fatalf("first GoToQuiz failed: %v", err)
		}

		resp, err := svc.GoToQuiz(ctx, student1(), started.ID)
		if err != nil {
			t.Fatalf("second GoToQuiz failed: %v", err)
		}
		if resp.Status != models.AttemptQuiz {
			t.Errorf("expected quiz status, got %q", resp.Status)
		}
	})

	t.Run("rejected after completion", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 902, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuizCompleted}
		f.repo.attempts[attempt.ID] = attempt

		_, err := svc.GoToQuiz(ctx, student1(), attempt.ID)
		var stateErr *InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected InvalidStateError, got %v", err)
		}
	})
}

func TestResetAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("admin resets back to the initial state", func(t *testing.T) {
		f := newFixture()
		svc, publisher := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 903, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuizCompleted}
		f.repo.attempts[attempt.ID] = attempt

		if err := svc.Reset(ctx, Caller{ID: "admin-1", Role: models.RoleAdmin}, attempt.ID); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if attempt.Status != models.AttemptExercise {
			t.Errorf("expected exercise status after reset, got %q", attempt.Status)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventAttemptReset {
			t.Fatalf("expected one attempt.reset event, got %+v", published)
		}
	})

	t.Run("non-admins cannot reset", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 904, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuiz}
		f.repo.attempts[attempt.ID] = attempt

		for _, caller := range []Caller{student1(), {ID: "ta-1", Role: models.RoleTA}} {
			err := svc.Reset(ctx, caller, attempt.ID)
			var permErr *PermissionError
			if !errors.As(err, &permErr) {
				t.Errorf("caller %s: expected PermissionError, got %v", caller.ID, err)
			}
		}
	})
}

func TestCourseScopedRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("staff registration in another course grants nothing here", func(t *testing.T) {
		f := newFixture()
		otherCourse := &models.Course{ID: 2, Name: "Networks", Owner: "teacher-2"}
		f.repo.courses[otherCourse.ID] = otherCourse
		f.repo.registrations = append(f.repo.registrations, &models.Registration{
			ID: 60, UserID: "outside-ta", CourseID: otherCourse.ID, Role: models.RoleTA,
		})
		svc, _ := newAttemptServiceForTest(f, nil)
		outsider := Caller{ID: "outside-ta", Role: models.RoleTA}

		if _, err := svc.Start(ctx, outsider, &StartAttemptRequest{ExerciseID: f.exercise.ID}); !errors.Is(err, ErrNotEnrolled) {
			t.Errorf("expected ErrNotEnrolled for staff of another course, got %v", err)
		}

		attempt := &models.Attempt{ID: 906, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptExercise}
		f.repo.attempts[attempt.ID] = attempt
		_, err := svc.Get(ctx, outsider, attempt.ID)
		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError viewing across courses, got %v", err)
		}

		_, _, err = svc.ListByExercise(ctx, outsider, f.exercise.ID, nil)
		if !errors.As(err, &permErr) {
			t.Errorf("expected PermissionError listing across courses, got %v", err)
		}
	})

	t.Run("registration role outranks the token claim", func(t *testing.T) {
		f := newFixture()
		f.repo.registrations = append(f.repo.registrations, &models.Registration{
			ID: 61, UserID: "course-ta", CourseID: f.course.ID, Role: models.RoleTA,
		})
		svc, _ := newAttemptServiceForTest(f, nil)
		svc.now = func() time.Time { return f.week.EndDate.Add(time.Minute) }
		courseTA := Caller{ID: "course-ta", Role: models.RoleStudent}

		// The window bypass comes from the registration role.
		if _, err := svc.Start(ctx, courseTA, &StartAttemptRequest{ExerciseID: f.exercise.ID}); err != nil {
			t.Errorf("expected course staff to bypass the closed window, got %v", err)
		}

		attempt := &models.Attempt{ID: 907, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptExercise}
		f.repo.attempts[attempt.ID] = attempt
		if _, err := svc.Get(ctx, courseTA, attempt.ID); err != nil {
			t.Errorf("expected course staff to view student attempts, got %v", err)
		}
		if _, _, err := svc.ListByExercise(ctx, courseTA, f.exercise.ID, nil); err != nil {
			t.Errorf("expected course staff to list attempts, got %v", err)
		}
	})

	t.Run("admin claim carries across courses", func(t *testing.T) {
		f := newFixture()
		svc, _ := newAttemptServiceForTest(f, nil)
		attempt := &models.Attempt{ID: 908, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptExercise}
		f.repo.attempts[attempt.ID] = attempt

		if _, err := svc.Get(ctx, Caller{ID: "admin-1", Role: models.RoleAdmin}, attempt.ID); err != nil {
			t.Errorf("expected admin to view any attempt, got %v", err)
		}
	})
}

func TestGetAttemptSolutionReveal(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	svc, _ := newAttemptServiceForTest(f, nil)
	attempt := &models.Attempt{ID: 905, ExerciseID: f.exercise.ID, StudentID: "student-1", Status: models.AttemptQuiz}
	f.repo.attempts[attempt.ID] = attempt

	// After the extra-time deadline the window is closed but solutions open.
	svc.now = func() time.Time { return f.week.EndDateExtraTime.Add(time.Minute) }

	resp, err := svc.Get(ctx, student1(), attempt.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !resp.SolutionVisible {
		t.Error("expected solutions to be visible after the extra-time deadline")
	}
	if len(resp.CorrectIndices) != len(resp.Questions) {
		t.Fatalf("expected correct indices for all %d questions, got %d", len(resp.Questions), len(resp.CorrectIndices))
	}
	// Shuffling is off in the fixture, so the correct answer is index 0.
	for i, indices := range resp.CorrectIndices {
		if len(indices) != 1 || indices[0] != 0 {
			t.Errorf("question %d: expected correct index [0], got %v", i, indices)
		}
	}
	if resp.CanSubmit {
		t.Error("submissions must be blocked once the window is closed")
	}
}
