package events

import (
	"context"
	"time"
)

// Event is the envelope for everything published to the message bus.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Event types published by this service
const (
	EventAttemptStarted    = "attempt.started"
	EventAttemptAdvanced   = "attempt.advanced"
	EventAttemptReset      = "attempt.reset"
	EventQuizStarted       = "quiz.started"
	EventQuizSubmitted     = "quiz.submitted"
	EventExerciseCompleted = "exercise.completed"
)

// TopicExerciseEvents is the topic all lifecycle events go to. Consumers
// filter on the envelope Type.
const TopicExerciseEvents = "exercise.events"

// EventSource identifies this service in published envelopes
const EventSource = "exercise-service"

// EventVersion is the envelope schema version
const EventVersion = "1.0"

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// ===== EVENT PAYLOADS =====

// AttemptEvent carries attempt lifecycle transitions
type AttemptEvent struct {
	AttemptID  uint   `json:"attempt_id"`
	StudentID  string `json:"student_id"`
	ExerciseID uint   `json:"exercise_id"`
	Status     string `json:"status"`
}

// QuizSubmittedEvent carries the outcome of one quiz submission
type QuizSubmittedEvent struct {
	AttemptID   uint    `json:"attempt_id"`
	StudentID   string  `json:"student_id"`
	ExerciseID  uint    `json:"exercise_id"`
	Correctness float64 `json:"correctness"`
	Passed      bool    `json:"passed"`
}

// ExerciseCompletedEvent is published the first time a student reaches a
// perfect score on an exercise
type ExerciseCompletedEvent struct {
	StudentID  string `json:"student_id"`
	ExerciseID uint   `json:"exercise_id"`
}
