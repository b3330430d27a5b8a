package services

import (
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/models"
)

type accessService struct {
	logger *slog.Logger
}

func NewAccessService(logger *slog.Logger) AccessService {
	return &accessService{logger: logger}
}

// CanAccess checks the week's access window at the given instant. Elevated
// roles bypass the window entirely. Students with an accommodation keep access
// through the extra-time deadline after the regular end date passes.
func (s *accessService) CanAccess(now time.Time, week *models.Week, role models.UserRole, hasAccommodation bool) error {
	if week == nil {
		return ErrWeekNotFound
	}
	if role == models.RoleTA || role == models.RoleAdmin {
		return nil
	}
	if now.Before(week.StartDate) {
		return ErrAccessWindowClosed
	}
	if now.Before(week.EndDate) {
		return nil
	}
	if hasAccommodation && now.Before(week.EndDateExtraTime) {
		return nil
	}
	return ErrAccessWindowClosed
}

// SolutionVisible reports whether correct answers may be revealed. Solutions
// stay hidden until every student, accommodations included, is locked out.
func (s *accessService) SolutionVisible(now time.Time, week *models.Week) bool {
	if week == nil {
		return false
	}
	return !now.Before(week.EndDateExtraTime)
}
