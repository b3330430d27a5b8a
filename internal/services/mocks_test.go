package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

// fakeRepository is an in-memory repositories.Repository for service tests.
type fakeRepository struct {
	mu sync.Mutex

	courses       map[uint]*models.Course
	weeks         map[uint]*models.Week
	registrations []*models.Registration
	exercises     map[uint]*models.Exercise
	quizzes       map[uint]*models.Quiz // keyed by exercise ID
	attempts      map[uint]*models.Attempt
	submissions   []*models.QuizSubmission
	completions   map[string]map[uint]bool // student -> exercise set
	logs          []*models.LogEntry
	users         map[string]*models.User

	nextID uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		courses:     make(map[uint]*models.Course),
		weeks:       make(map[uint]*models.Week),
		exercises:   make(map[uint]*models.Exercise),
		quizzes:     make(map[uint]*models.Quiz),
		attempts:    make(map[uint]*models.Attempt),
		completions: make(map[string]map[uint]bool),
		users:       make(map[string]*models.User),
	}
}

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) Course() repositories.CourseRepository   { return &fakeCourseRepo{f} }
func (f *fakeRepository) Week() repositories.WeekRepository       { return &fakeWeekRepo{f} }
func (f *fakeRepository) Registration() repositories.RegistrationRepository {
	return &fakeRegistrationRepo{f}
}
func (f *fakeRepository) Exercise() repositories.ExerciseRepository { return &fakeExerciseRepo{f} }
func (f *fakeRepository) Quiz() repositories.QuizRepository         { return &fakeQuizRepo{f} }
func (f *fakeRepository) Attempt() repositories.AttemptRepository   { return &fakeAttemptRepo{f} }
func (f *fakeRepository) Submission() repositories.SubmissionRepository {
	return &fakeSubmissionRepo{f}
}
func (f *fakeRepository) Completion() repositories.CompletionRepository {
	return &fakeCompletionRepo{f}
}
func (f *fakeRepository) Log() repositories.LogRepository   { return &fakeLogRepo{f} }
func (f *fakeRepository) User() repositories.UserRepository { return &fakeUserRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ----- course -----

type fakeCourseRepo struct{ f *fakeRepository }

func (r *fakeCourseRepo) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if course.ID == 0 {
		course.ID = r.f.id()
	}
	r.f.courses[course.ID] = course
	return nil
}

func (r *fakeCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	course, ok := r.f.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return course, nil
}

func (r *fakeCourseRepo) Update(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.courses[course.ID] = course
	return nil
}

func (r *fakeCourseRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.courses, id)
	return nil
}

func (r *fakeCourseRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.Course, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*models.Course, 0, len(r.f.courses))
	for _, c := range r.f.courses {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

// ----- week -----

type fakeWeekRepo struct{ f *fakeRepository }

func (r *fakeWeekRepo) Create(ctx context.Context, tx *gorm.DB, week *models.Week) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if week.ID == 0 {
		week.ID = r.f.id()
	}
	r.f.weeks[week.ID] = week
	return nil
}

func (r *fakeWeekRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Week, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	week, ok := r.f.weeks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return week, nil
}

func (r *fakeWeekRepo) Update(ctx context.Context, tx *gorm.DB, week *models.Week) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.weeks[week.ID] = week
	return nil
}

func (r *fakeWeekRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.weeks, id)
	return nil
}

func (r *fakeWeekRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Week, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Week
	for _, w := range r.f.weeks {
		if w.CourseID == courseID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeWeekRepo) GetForExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Week, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	exercise, ok := r.f.exercises[exerciseID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	week, ok := r.f.weeks[exercise.WeekID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return week, nil
}

// ----- registration -----

type fakeRegistrationRepo struct{ f *fakeRepository }

func (r *fakeRegistrationRepo) Create(ctx context.Context, tx *gorm.DB, reg *models.Registration) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if reg.ID == 0 {
		reg.ID = r.f.id()
	}
	r.f.registrations = append(r.f.registrations, reg)
	return nil
}

func (r *fakeRegistrationRepo) Update(ctx context.Context, tx *gorm.DB, reg *models.Registration) error {
	return nil
}

func (r *fakeRegistrationRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Registration, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, reg := range r.f.registrations {
		if reg.UserID == userID && reg.CourseID == courseID {
			return reg, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRegistrationRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Registration, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Registration
	for _, reg := range r.f.registrations {
		if reg.CourseID == courseID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (r *fakeRegistrationRepo) GetByGroup(ctx context.Context, tx *gorm.DB, courseID uint, groupName string) ([]*models.Registration, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Registration
	for _, reg := range r.f.registrations {
		if reg.CourseID == courseID && reg.GroupName != nil && *reg.GroupName == groupName {
			out = append(out, reg)
		}
	}
	return out, nil
}

// ----- exercise -----

type fakeExerciseRepo struct{ f *fakeRepository }

func (r *fakeExerciseRepo) Create(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if exercise.ID == 0 {
		exercise.ID = r.f.id()
	}
	r.f.exercises[exercise.ID] = exercise
	return nil
}

func (r *fakeExerciseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	exercise, ok := r.f.exercises[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return exercise, nil
}

func (r *fakeExerciseRepo) GetByIDWithQuiz(ctx context.Context, tx *gorm.DB, id uint) (*models.Exercise, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	exercise, ok := r.f.exercises[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *exercise
	copied.Quiz = r.f.quizzes[id]
	return &copied, nil
}

func (r *fakeExerciseRepo) Update(ctx context.Context, tx *gorm.DB, exercise *models.Exercise) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.exercises[exercise.ID] = exercise
	return nil
}

func (r *fakeExerciseRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.exercises, id)
	return nil
}

func (r *fakeExerciseRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ExerciseFilters) ([]*models.Exercise, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Exercise
	for _, e := range r.f.exercises {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *fakeExerciseRepo) GetByWeek(ctx context.Context, tx *gorm.DB, weekID uint) ([]*models.Exercise, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Exercise
	for _, e := range r.f.exercises {
		if e.WeekID == weekID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- quiz -----

type fakeQuizRepo struct{ f *fakeRepository }

func (r *fakeQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if quiz.ID == 0 {
		quiz.ID = r.f.id()
	}
	r.f.quizzes[quiz.ExerciseID] = quiz
	return nil
}

func (r *fakeQuizRepo) GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint) (*models.Quiz, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	quiz, ok := r.f.quizzes[exerciseID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (r *fakeQuizRepo) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.quizzes[quiz.ExerciseID] = quiz
	return nil
}

func (r *fakeQuizRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for exerciseID, quiz := range r.f.quizzes {
		if quiz.ID == id {
			delete(r.f.quizzes, exerciseID)
		}
	}
	return nil
}

// ----- attempt -----

type fakeAttemptRepo struct{ f *fakeRepository }

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if attempt.ID == 0 {
		attempt.ID = r.f.id()
	}
	attempt.CreatedAt = time.Now()
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	attempt, ok := r.f.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) GetByStudentAndExercise(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (*models.Attempt, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, a := range r.f.attempts {
		if a.StudentID == studentID && a.ExerciseID == exerciseID {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Attempt
	for _, a := range r.f.attempts {
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetByExercise(ctx context.Context, tx *gorm.DB, exerciseID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Attempt
	for _, a := range r.f.attempts {
		if a.ExerciseID != exerciseID {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && a.StudentID != *filters.StudentID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

// ----- submission -----

type fakeSubmissionRepo struct{ f *fakeRepository }

func (r *fakeSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if submission.ID == 0 {
		submission.ID = r.f.id()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}
	r.f.submissions = append(r.f.submissions, submission)
	return nil
}

func (r *fakeSubmissionRepo) GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.QuizSubmission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var latest *models.QuizSubmission
	for _, s := range r.f.submissions {
		if s.AttemptID != attemptID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) || (s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *fakeSubmissionRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizSubmission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.QuizSubmission
	for _, s := range r.f.submissions {
		if s.AttemptID == attemptID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) CountByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	subs, _ := r.GetByAttempt(ctx, tx, attemptID)
	return int64(len(subs)), nil
}

// ----- completion -----

type fakeCompletionRepo struct{ f *fakeRepository }

func (r *fakeCompletionRepo) Add(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.completions[studentID] == nil {
		r.f.completions[studentID] = make(map[uint]bool)
	}
	r.f.completions[studentID][exerciseID] = true
	return nil
}

func (r *fakeCompletionRepo) Exists(ctx context.Context, tx *gorm.DB, studentID string, exerciseID uint) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	return r.f.completions[studentID][exerciseID], nil
}

func (r *fakeCompletionRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.CompletedExercise, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.CompletedExercise
	for exerciseID := range r.f.completions[studentID] {
		out = append(out, &models.CompletedExercise{StudentID: studentID, ExerciseID: exerciseID})
	}
	return out, nil
}

// ----- log -----

type fakeLogRepo struct{ f *fakeRepository }

func (r *fakeLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *models.LogEntry) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = r.f.id()
	}
	entry.CreatedAt = time.Now()
	r.f.logs = append(r.f.logs, entry)
	return nil
}

func (r *fakeLogRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.LogFilters) ([]*models.LogEntry, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.LogEntry
	for _, entry := range r.f.logs {
		if filters.EntryType != nil && entry.EntryType != *filters.EntryType {
			continue
		}
		if filters.StudentID != nil && entry.StudentID != *filters.StudentID {
			continue
		}
		if filters.ExerciseID != nil && entry.ExerciseID != *filters.ExerciseID {
			continue
		}
		if filters.AttemptID != nil && entry.AttemptID != *filters.AttemptID {
			continue
		}
		out = append(out, entry)
	}
	return out, int64(len(out)), nil
}

// ----- user -----

type fakeUserRepo struct{ f *fakeRepository }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	user, ok := r.f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// ----- fake chat and scheduler -----

type fakeChat struct {
	mu       sync.Mutex
	threads  int
	messages []string
	failNext bool
}

func (c *fakeChat) CreateThread(ctx context.Context, systemPrompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return "", context.DeadlineExceeded
	}
	c.threads++
	return "thread-1", nil
}

func (c *fakeChat) SendMessage(ctx context.Context, threadID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return nil
}

type immediateScheduler struct{}

func (immediateScheduler) RunAfter(_ time.Duration, job func()) { job() }

// racingRepo injects a state change right before the transaction body runs,
// standing in for a concurrent writer that committed first.
type racingRepo struct {
	*fakeRepository
	before func()
}

func (r *racingRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.before != nil {
		b := r.before
		r.before = nil
		b()
	}
	return fn(r.fakeRepository)
}

// ----- fixtures -----

// fixture is a course with one open week, one published exercise and a quiz
// of two symmetric batches. student-1 is registered as a student, ta-1 as
// course staff. Shuffling is disabled so display order equals declared order
// and the correct answer sits at index 0 of every question.
type fixture struct {
	repo         *fakeRepository
	course       *models.Course
	week         *models.Week
	exercise     *models.Exercise
	quiz         *models.Quiz
	registration *models.Registration
}

func newFixture() *fixture {
	repo := newFakeRepository()
	now := time.Now()

	course := &models.Course{ID: 1, Name: "Databases", Owner: "teacher-1"}
	repo.courses[course.ID] = course

	week := &models.Week{
		ID:               10,
		CourseID:         course.ID,
		Number:           1,
		StartDate:        now.Add(-24 * time.Hour),
		EndDate:          now.Add(24 * time.Hour),
		EndDateExtraTime: now.Add(48 * time.Hour),
	}
	repo.weeks[week.ID] = week

	exercise := &models.Exercise{
		ID:           100,
		WeekID:       week.ID,
		Title:        "Normalization",
		Content:      "Read about third normal form.",
		ControlGroup: models.ControlGroupAll,
		Published:    true,
		CreatedBy:    "teacher-1",
	}
	repo.exercises[exercise.ID] = exercise

	quiz := &models.Quiz{ID: 200, ExerciseID: exercise.ID}
	for bi := 0; bi < 2; bi++ {
		batch := models.QuizBatch{ID: uint(210 + bi), QuizID: quiz.ID, Order: bi}
		for qi := 0; qi < 2; qi++ {
			question := models.QuizQuestion{
				ID:             uint(220 + bi*10 + qi),
				Order:          qi,
				Type:           models.MultipleChoice,
				Text:           "question",
				ShuffleAnswers: false,
			}
			for ai := 0; ai < 3; ai++ {
				question.Answers = append(question.Answers, models.QuizAnswer{
					Order:   ai,
					Text:    "answer",
					Correct: ai == 0,
				})
			}
			batch.Questions = append(batch.Questions, question)
		}
		quiz.Batches = append(quiz.Batches, batch)
	}
	repo.quizzes[exercise.ID] = quiz

	reg := &models.Registration{
		ID:       50,
		UserID:   "student-1",
		CourseID: course.ID,
		Role:     models.RoleStudent,
	}
	repo.registrations = append(repo.registrations, reg)

	taReg := &models.Registration{
		ID:       51,
		UserID:   "ta-1",
		CourseID: course.ID,
		Role:     models.RoleTA,
	}
	repo.registrations = append(repo.registrations, taReg)

	return &fixture{
		repo:         repo,
		course:       course,
		week:         week,
		exercise:     exercise,
		quiz:         quiz,
		registration: reg,
	}
}

func student1() Caller { return Caller{ID: "student-1", Role: models.RoleStudent} }
