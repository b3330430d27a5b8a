package services

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/seedrand"
)

type presentationService struct {
	assignment AssignmentService
	logger     *slog.Logger
}

func NewPresentationService(assignment AssignmentService, logger *slog.Logger) PresentationService {
	return &presentationService{
		assignment: assignment,
		logger:     logger,
	}
}

// Present resolves the quiz a student actually sees: their batch, the question
// order within it, and the answer order within each question. The result is
// derived entirely from the stored quiz and the seed parts, so calling it
// again with the same inputs reproduces the identical view. Grading relies on
// that to map submitted display indices back to the answer key without ever
// persisting a presentation.
func (s *presentationService) Present(quiz *models.Quiz, studentID string, exerciseID uint, registration *models.Registration) (*Presentation, error) {
	if quiz == nil || len(quiz.Batches) == 0 {
		return nil, ErrQuizNoBatches
	}

	batchIndex, err := s.assignment.BatchIndex(studentID, exerciseID, registration, len(quiz.Batches))
	if err != nil {
		return nil, err
	}

	batches := make([]models.QuizBatch, len(quiz.Batches))
	copy(batches, quiz.Batches)
	sort.SliceStable(batches, func(i, j int) bool { return batches[i].Order < batches[j].Order })
	batch := batches[batchIndex]

	exID := strconv.FormatUint(uint64(exerciseID), 10)

	questions := make([]models.QuizQuestion, len(batch.Questions))
	copy(questions, batch.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	if batch.Randomize {
		src := seedrand.New(studentID, exID, "questions order")
		questions = seedrand.ShuffleSlice(src, questions)
	}

	presented := make([]PresentedQuestion, len(questions))
	for qi, question := range questions {
		answers := make([]models.QuizAnswer, len(question.Answers))
		copy(answers, question.Answers)
		sort.SliceStable(answers, func(i, j int) bool { return answers[i].Order < answers[j].Order })

		// The answer seed is keyed by the question's display position, not
		// its stored order, so two students who see the same question at
		// different positions get independent answer orders.
		if question.ShuffleAnswers && len(answers) > 1 {
			src := seedrand.New(exID, studentID, strconv.Itoa(qi), "answers order")
			answers = seedrand.ShuffleSlice(src, answers)
		}

		pq := PresentedQuestion{
			Type:    question.Type,
			Text:    question.Text,
			Answers: make([]PresentedAnswer, len(answers)),
		}
		for ai, answer := range answers {
			pq.Answers[ai] = PresentedAnswer{Text: answer.Text, Correct: answer.Correct}
			if answer.Correct {
				pq.CorrectIndices = append(pq.CorrectIndices, ai)
			}
		}
		presented[qi] = pq
	}

	return &Presentation{
		BatchIndex: batchIndex,
		Questions:  presented,
	}, nil
}

// Snapshot flattens a presentation into the denormalized form stored in audit
// log payloads.
func Snapshot(p *Presentation) []models.PresentedQuestionSnapshot {
	out := make([]models.PresentedQuestionSnapshot, len(p.Questions))
	for i, q := range p.Questions {
		snap := models.PresentedQuestionSnapshot{
			Text:           q.Text,
			Type:           string(q.Type),
			CorrectIndices: q.CorrectIndices,
		}
		if len(q.Answers) > 0 {
			snap.Answers = make([]string, len(q.Answers))
			for j, a := range q.Answers {
				snap.Answers[j] = a.Text
			}
		}
		out[i] = snap
	}
	return out
}

// StudentView strips the answer key from a presentation.
func StudentView(p *Presentation) []StudentQuestion {
	out := make([]StudentQuestion, len(p.Questions))
	for i, q := range p.Questions {
		sq := StudentQuestion{Type: q.Type, Text: q.Text}
		if len(q.Answers) > 0 {
			sq.Answers = make([]string, len(q.Answers))
			for j, a := range q.Answers {
				sq.Answers[j] = a.Text
			}
		}
		out[i] = sq
	}
	return out
}
