package models

import (
	"time"

	"gorm.io/datatypes"
)

type LogEntryType string

const (
	LogAttemptStarted LogEntryType = "attemptStarted"
	LogQuizStarted    LogEntryType = "quizStarted"
	LogQuizSubmission LogEntryType = "quizSubmission"
)

// LogEntry is the append-only audit record of attempt lifecycle events. The
// payload snapshots the presented question/answer order and correctness for
// quiz events, because that order is recomputed on demand and never persisted
// anywhere else.
type LogEntry struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	EntryType  LogEntryType `json:"entry_type" gorm:"not null;index;size:30"`
	StudentID  string       `json:"student_id" gorm:"not null;index;size:255"`
	ExerciseID uint         `json:"exercise_id" gorm:"not null;index"`
	AttemptID  uint         `json:"attempt_id" gorm:"not null;index"`

	Payload datatypes.JSON `json:"payload" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// PresentedQuestionSnapshot is the denormalized per-question record stored in
// quizStarted and quizSubmission log payloads, in display order.
type PresentedQuestionSnapshot struct {
	Text           string   `json:"text"`
	Type           string   `json:"type"`
	Answers        []string `json:"answers,omitempty"`
	CorrectIndices []int    `json:"correct_indices,omitempty"`
}

// QuizLogPayload is the JSON shape of quiz lifecycle log entries.
type QuizLogPayload struct {
	BatchIndex  int                         `json:"batch_index"`
	Questions   []PresentedQuestionSnapshot `json:"questions"`
	RawAnswers  []string                    `json:"raw_answers,omitempty"`
	Correctness *float64                    `json:"correctness,omitempty"`
}

func (LogEntry) TableName() string {
	return "log_entries"
}
