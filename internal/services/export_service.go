package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

const exportSheet = "Sheet1"

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ExportQuizResults renders one row per attempt on the exercise: who, how far
// they got, how many submissions it took, and whether they completed.
func (s *exportService) ExportQuizResults(ctx context.Context, caller Caller, exerciseID uint) ([]byte, error) {
	role, err := s.courseRole(ctx, caller, exerciseID)
	if err != nil {
		return nil, err
	}
	if !role.Elevated() {
		return nil, NewPermissionError(caller.ID, exerciseID, "exercise", "export results", "elevated role required")
	}

	exercise, err := s.repo.Exercise().GetByID(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	attempts, _, err := s.repo.Attempt().GetByExercise(ctx, nil, exerciseID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	names := s.studentNames(ctx, attempts)

	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"Student ID", "Student Name", "Status", "Submissions", "Completed", "Last Submission"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}

	for row, attempt := range attempts {
		submissions, err := s.repo.Submission().CountByAttempt(ctx, nil, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count submissions: %w", err)
		}
		completed, err := s.repo.Completion().Exists(ctx, nil, attempt.StudentID, exerciseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check completion: %w", err)
		}
		lastSubmission := ""
		if latest, err := s.repo.Submission().GetLatestByAttempt(ctx, nil, attempt.ID); err == nil {
			lastSubmission = latest.CreatedAt.Format("2006-01-02 15:04:05")
		}

		values := []any{attempt.StudentID, names[attempt.StudentID], string(attempt.Status), submissions, completed, lastSubmission}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("exported quiz results", "exercise_id", exerciseID, "title", exercise.Title, "rows", len(attempts))
	return buf.Bytes(), nil
}

// ExportActivityLog renders the exercise's audit trail, one row per entry.
func (s *exportService) ExportActivityLog(ctx context.Context, caller Caller, exerciseID uint) ([]byte, error) {
	role, err := s.courseRole(ctx, caller, exerciseID)
	if err != nil {
		return nil, err
	}
	if !role.Elevated() {
		return nil, NewPermissionError(caller.ID, exerciseID, "exercise", "export log", "elevated role required")
	}

	entries, _, err := s.repo.Log().List(ctx, nil, repositories.LogFilters{ExerciseID: &exerciseID})
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"Timestamp", "Entry Type", "Student ID", "Attempt ID", "Batch", "Correctness"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}

	for row, entry := range entries {
		batch := ""
		correctness := ""
		if entry.EntryType == models.LogQuizStarted || entry.EntryType == models.LogQuizSubmission {
			var payload models.QuizLogPayload
			if err := json.Unmarshal(entry.Payload, &payload); err == nil {
				batch = fmt.Sprintf("%d", payload.BatchIndex)
				if payload.Correctness != nil {
					correctness = fmt.Sprintf("%.2f", *payload.Correctness)
				}
			}
		}

		values := []any{
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			string(entry.EntryType),
			entry.StudentID,
			entry.AttemptID,
			batch,
			correctness,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// courseRole resolves the caller's effective role in the exercise's course.
func (s *exportService) courseRole(ctx context.Context, caller Caller, exerciseID uint) (models.UserRole, error) {
	week, err := s.repo.Week().GetForExercise(ctx, nil, exerciseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", ErrExerciseNotFound
		}
		return "", fmt.Errorf("failed to get week: %w", err)
	}
	return resolveCourseRole(ctx, s.repo, caller, week.CourseID)
}

func (s *exportService) studentNames(ctx context.Context, attempts []*models.Attempt) map[string]string {
	ids := make([]string, 0, len(attempts))
	seen := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		if !seen[a.StudentID] {
			seen[a.StudentID] = true
			ids = append(ids, a.StudentID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}
	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		// Export still works without display names.
		s.logger.Warn("failed to resolve student names for export", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}
