package services

import (
	"log/slog"
	"strconv"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/seedrand"
)

type assignmentService struct {
	logger *slog.Logger
}

func NewAssignmentService(logger *slog.Logger) AssignmentService {
	return &assignmentService{logger: logger}
}

// Variant resolves which experience a student gets for an exercise.
// "all" puts everyone on the reading variant, "none" puts everyone on the
// explain variant, and a named control group gives explain only to students
// whose registration group matches the name.
func (s *assignmentService) Variant(exercise *models.Exercise, registration *models.Registration) models.ExerciseVariant {
	switch exercise.ControlGroup {
	case models.ControlGroupAll:
		return models.VariantReading
	case models.ControlGroupNone:
		return models.VariantExplain
	}
	if registration != nil && registration.GroupName != nil && *registration.GroupName == string(exercise.ControlGroup) {
		return models.VariantExplain
	}
	return models.VariantReading
}

// BatchIndex picks the student's quiz batch. Students with complete group
// metadata get a group-balanced assignment so each batch is seen by an even
// share of the group; everyone else falls back to a per-student hash. Both
// paths are pure functions of their seed parts, so the index can be recomputed
// at grading time.
func (s *assignmentService) BatchIndex(studentID string, exerciseID uint, registration *models.Registration, batchCount int) (int, error) {
	if batchCount <= 0 {
		return 0, ErrQuizNoBatches
	}
	if batchCount == 1 {
		return 0, nil
	}

	exID := strconv.FormatUint(uint64(exerciseID), 10)

	if registration.HasValidGroup() {
		src := seedrand.New(exID, *registration.GroupName, "batch")
		perm := src.Perm(*registration.GroupSize)
		return perm[*registration.GroupPosition] % batchCount, nil
	}

	src := seedrand.New(studentID, exID, "batch")
	return src.IntN(0, batchCount-1), nil
}
