package repositories

import "context"

// Repository aggregates all entity repositories behind one handle.
type Repository interface {
	// Course domain
	Course() CourseRepository
	Week() WeekRepository
	Registration() RegistrationRepository

	// Exercise domain
	Exercise() ExerciseRepository
	Quiz() QuizRepository

	// Attempt domain
	Attempt() AttemptRepository
	Submission() SubmissionRepository
	Completion() CompletionRepository
	Log() LogRepository

	// User domain (read-only for this service)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
