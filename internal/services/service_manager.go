package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/exercise-service/internal/events"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
	"github.com/SAP-F-2025/exercise-service/internal/validator"
)

// ServiceManagerConfig configures the whole service layer.
type ServiceManagerConfig struct {
	Repository repositories.Repository
	Validator  *validator.Validator
	Publisher  events.EventPublisher
	Chat       ChatThreadStarter
	Scheduler  Scheduler
	Logger     *slog.Logger

	RetryCooldown     time.Duration
	FirstMessageDelay time.Duration
}

type serviceManager struct {
	exercise     ExerciseService
	attempt      AttemptService
	grading      GradingService
	assignment   AssignmentService
	presentation PresentationService
	access       AccessService
	export       ExportService

	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewServiceManager wires every service with shared collaborators.
func NewServiceManager(config ServiceManagerConfig) (ServiceManager, error) {
	if config.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if config.Validator == nil {
		config.Validator = validator.New()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	assignment := NewAssignmentService(config.Logger)
	presentation := NewPresentationService(assignment, config.Logger)
	access := NewAccessService(config.Logger)

	attempt := NewAttemptService(AttemptServiceDeps{
		Repo:              config.Repository,
		Validator:         config.Validator,
		Publisher:         config.Publisher,
		Access:            access,
		Assignment:        assignment,
		Presentation:      presentation,
		Chat:              config.Chat,
		Scheduler:         config.Scheduler,
		Logger:            config.Logger,
		RetryCooldown:     config.RetryCooldown,
		FirstMessageDelay: config.FirstMessageDelay,
	})

	grading := NewGradingService(GradingServiceDeps{
		Repo:          config.Repository,
		Validator:     config.Validator,
		Publisher:     config.Publisher,
		Access:        access,
		Presentation:  presentation,
		Logger:        config.Logger,
		RetryCooldown: config.RetryCooldown,
	})

	return &serviceManager{
		exercise:     NewExerciseService(config.Repository, config.Validator, access, assignment, config.Logger),
		attempt:      attempt,
		grading:      grading,
		assignment:   assignment,
		presentation: presentation,
		access:       access,
		export:       NewExportService(config.Repository, config.Logger),
		repo:         config.Repository,
		publisher:    config.Publisher,
		logger:       config.Logger,
	}, nil
}

func (m *serviceManager) Exercise() ExerciseService         { return m.exercise }
func (m *serviceManager) Attempt() AttemptService           { return m.attempt }
func (m *serviceManager) Grading() GradingService           { return m.grading }
func (m *serviceManager) Assignment() AssignmentService     { return m.assignment }
func (m *serviceManager) Presentation() PresentationService { return m.presentation }
func (m *serviceManager) Access() AccessService             { return m.access }
func (m *serviceManager) Export() ExportService             { return m.export }

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (m *serviceManager) Close() error {
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			m.logger.Error("failed to close event publisher", "error", err)
		}
	}
	return m.repo.Close()
}
