package models

import (
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FreeText       QuestionType = "free_text"
)

type Quiz struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ExerciseID uint `json:"exercise_id" gorm:"not null;uniqueIndex"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Batches []QuizBatch `json:"batches" gorm:"foreignKey:QuizID"`
}

// QuizBatch is one alternative question set; each student is deterministically
// assigned exactly one batch of a quiz.
type QuizBatch struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	QuizID uint `json:"quiz_id" gorm:"not null;index"`
	Order  int  `json:"order" gorm:"not null;default:0"`

	// Randomize controls per-student question shuffling within the batch.
	Randomize bool `json:"randomize" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []QuizQuestion `json:"questions" gorm:"foreignKey:BatchID"`
}

// QuizQuestion is either a multiple-choice item (with Answers) or a free-text
// item (no answers, never auto-graded). Type discriminates; code must not
// treat a free-text question as answer-bearing.
type QuizQuestion struct {
	ID      uint         `json:"id" gorm:"primaryKey"`
	BatchID uint         `json:"batch_id" gorm:"not null;index"`
	Order   int          `json:"order" gorm:"not null;default:0"`
	Type    QuestionType `json:"type" gorm:"not null;size:20" validate:"required,oneof=multiple_choice free_text"`
	Text    string       `json:"text" gorm:"type:text;not null" validate:"required"`

	// ShuffleAnswers opts a multiple-choice question out of per-student
	// answer shuffling when false; the declared order is used instead.
	ShuffleAnswers bool `json:"shuffle_answers" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers []QuizAnswer `json:"answers" gorm:"foreignKey:QuestionID"`
}

type QuizAnswer struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Order      int    `json:"order" gorm:"not null;default:0"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required"`
	Correct    bool   `json:"correct" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
}

// IsMultipleChoice reports whether the question carries an answer list.
func (q *QuizQuestion) IsMultipleChoice() bool {
	return q.Type == MultipleChoice
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (QuizBatch) TableName() string {
	return "quiz_batches"
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

func (QuizAnswer) TableName() string {
	return "quiz_answers"
}
