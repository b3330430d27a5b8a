package validator

import (
	"fmt"

	"github.com/SAP-F-2025/exercise-service/internal/models"
)

// ValidateQuiz checks structural business rules on a quiz definition: a quiz
// needs at least one batch, every multiple-choice question needs at least one
// correct answer, and free-text questions must not carry answer lists.
func (v *Validator) ValidateQuiz(quiz *models.Quiz) ValidationErrors {
	var errors ValidationErrors

	if len(quiz.Batches) == 0 {
		errors = append(errors, ValidationError{
			Field:   "batches",
			Message: "quiz must have at least one batch",
			Rule:    "business_logic",
		})
		return errors
	}

	for bi, batch := range quiz.Batches {
		if len(batch.Questions) == 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("batches[%d].questions", bi),
				Message: "batch must have at least one question",
				Rule:    "business_logic",
			})
			continue
		}

		for qi, question := range batch.Questions {
			errors = append(errors, v.validateQuestion(bi, qi, &question)...)
		}
	}

	return errors
}

func (v *Validator) validateQuestion(bi, qi int, question *models.QuizQuestion) ValidationErrors {
	var errors ValidationErrors
	field := fmt.Sprintf("batches[%d].questions[%d]", bi, qi)

	if question.Text == "" {
		errors = append(errors, ValidationError{
			Field:   field + ".text",
			Message: "question text is required",
			Rule:    "required",
		})
	}

	switch question.Type {
	case models.MultipleChoice:
		if len(question.Answers) < 2 {
			errors = append(errors, ValidationError{
				Field:   field + ".answers",
				Message: "multiple choice question must have at least two answers",
				Value:   len(question.Answers),
				Rule:    "business_logic",
			})
		}

		hasCorrect := false
		for _, answer := range question.Answers {
			if answer.Correct {
				hasCorrect = true
				break
			}
		}
		if !hasCorrect {
			errors = append(errors, ValidationError{
				Field:   field + ".answers",
				Message: "multiple choice question must have at least one correct answer",
				Rule:    "business_logic",
			})
		}
	case models.FreeText:
		if len(question.Answers) > 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".answers",
				Message: "free text question must not have answers",
				Value:   len(question.Answers),
				Rule:    "business_logic",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   field + ".type",
			Message: "unknown question type",
			Value:   question.Type,
			Rule:    "oneof",
		})
	}

	return errors
}

// ValidateWeekWindow checks the temporal ordering of a week's access window.
func (v *Validator) ValidateWeekWindow(week *models.Week) ValidationErrors {
	var errors ValidationErrors

	if !week.StartDate.Before(week.EndDate) {
		errors = append(errors, ValidationError{
			Field:   "end_date",
			Message: "end date must be after start date",
			Rule:    "business_logic",
		})
	}

	if week.EndDateExtraTime.Before(week.EndDate) {
		errors = append(errors, ValidationError{
			Field:   "end_date_extra_time",
			Message: "extra time deadline must not be before end date",
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateExercise checks business rules on exercise definitions. A chat-style
// exercise needs a system prompt before it can be published.
func (v *Validator) ValidateExercise(exercise *models.Exercise) ValidationErrors {
	errors := v.Validate(exercise)

	if exercise.Published && exercise.ControlGroup != models.ControlGroupAll {
		if exercise.SystemPrompt == "" {
			errors = append(errors, ValidationError{
				Field:   "system_prompt",
				Message: "published exercise with a chat variant requires a system prompt",
				Rule:    "business_logic",
			})
		}
	}

	return errors
}
