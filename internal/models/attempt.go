package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptExercise          AttemptStatus = "exercise"
	AttemptExerciseCompleted AttemptStatus = "exerciseCompleted"
	AttemptQuiz              AttemptStatus = "quiz"
	AttemptQuizCompleted     AttemptStatus = "quizCompleted"
)

// rank orders statuses for the forward-only progression rule.
var attemptStatusRank = map[AttemptStatus]int{
	AttemptExercise:          0,
	AttemptExerciseCompleted: 1,
	AttemptQuiz:              2,
	AttemptQuizCompleted:     3,
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s AttemptStatus) CanAdvanceTo(next AttemptStatus) bool {
	from, ok := attemptStatusRank[s]
	if !ok {
		return false
	}
	to, ok := attemptStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Attempt is a student's single engagement with one exercise. At most one per
// (student, exercise); status only advances forward except by administrative
// correction.
type Attempt struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	ExerciseID uint          `json:"exercise_id" gorm:"not null;index:idx_attempt_student_exercise,unique"`
	StudentID  string        `json:"student_id" gorm:"not null;index:idx_attempt_student_exercise,unique;size:255"`
	Status     AttemptStatus `json:"status" gorm:"not null;default:exercise;index"`

	// Conversation-thread reference for the chat-driven variant.
	ThreadID *string `json:"thread_id" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exercise    Exercise         `json:"-" gorm:"foreignKey:ExerciseID"`
	Student     User             `json:"-" gorm:"foreignKey:StudentID"`
	Submissions []QuizSubmission `json:"-" gorm:"foreignKey:AttemptID"`
}

// QuizSubmission is an append-only record of one grading attempt: the raw
// answer vector exactly as submitted, plus a timestamp. The latest row per
// attempt drives the retry cooldown and answer pre-fill.
type QuizSubmission struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	AttemptID uint `json:"attempt_id" gorm:"not null;index"`

	// One entry per displayed question: a numeric index for multiple
	// choice, free text otherwise.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relations
	Attempt Attempt `json:"-" gorm:"foreignKey:AttemptID"`
}

// CompletedExercise marks an exercise as done for a student. Inserts are
// idempotent via the unique index.
type CompletedExercise struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	StudentID  string `json:"student_id" gorm:"not null;index:idx_completed_student_exercise,unique;size:255"`
	ExerciseID uint   `json:"exercise_id" gorm:"not null;index:idx_completed_student_exercise,unique"`

	CreatedAt time.Time `json:"created_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (QuizSubmission) TableName() string {
	return "quiz_submissions"
}

func (CompletedExercise) TableName() string {
	return "completed_exercises"
}
