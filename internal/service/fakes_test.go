package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"lms/internal/config"
	"lms/internal/model"
	"lms/internal/repository"
	"lms/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Seed catalog identifiers.
const (
	freeCourseID  = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c001"
	paidCourseID  = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c002"
	draftCourseID = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c003"

	videoLessonID      = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b201"
	textLessonID       = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b202"
	pdfLessonID        = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b203"
	quizLessonID       = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b204"
	submissionLessonID = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b205"

	studentID = "11111111-1111-1111-1111-111111111111"
	adminID   = "22222222-2222-2222-2222-222222222222"
)

var testLogger = zerolog.New(io.Discard)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*model.User{}}
	for i := range users {
		u := users[i]
		f.users[u.UserID] = &u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	cp := *u
	f.users[u.UserID] = &cp
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByStripeCustomerID(_ context.Context, customerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) UpdateStripeCustomerID(_ context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.StripeCustomerID = &customerID
	}
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.users[u.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name = u.Name
	cur.AvatarURL = u.AvatarURL
	return nil
}

func (f *fakeUsers) ListUsers(_ context.Context, fl model.UserFilter) ([]model.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		if fl.Role != "" && u.Role != fl.Role {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, len(out), nil
}

func (f *fakeUsers) UpdateRole(_ context.Context, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUsers) SetBanned(_ context.Context, userID string, banned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Banned = banned
	return nil
}

type fakeEnrollments struct {
	mu   sync.Mutex
	rows map[string]model.Enrollment
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{rows: map[string]model.Enrollment{}}
}

func (f *fakeEnrollments) Create(_ context.Context, e *model.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := e.UserID + "/" + e.CourseID
	if cur, ok := f.rows[key]; ok {
		*e = cur
		return nil
	}
	e.CreatedAt = time.Now()
	f.rows[key] = *e
	return nil
}

func (f *fakeEnrollments) Exists(_ context.Context, userID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[userID+"/"+courseID]
	return ok, nil
}

func (f *fakeEnrollments) ListByUser(_ context.Context, userID string) ([]model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Enrollment
	for _, e := range f.rows {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTransactions struct {
	mu          sync.Mutex
	rows        map[string]*model.Transaction
	enrollments *fakeEnrollments
}

func newFakeTransactions(enrollments *fakeEnrollments) *fakeTransactions {
	return &fakeTransactions{rows: map[string]*model.Transaction{}, enrollments: enrollments}
}

func (f *fakeTransactions) Create(_ context.Context, t *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.NewString()
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTransactions) GetByID(_ context.Context, id string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransactions) SetProviderRef(_ context.Context, id, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.rows[id]; ok {
		t.ProviderRef = ref
	}
	return nil
}

func (f *fakeTransactions) CompletePurchase(ctx context.Context, id string) (*model.Transaction, error) {
	f.mu.Lock()
	t, ok := f.rows[id]
	if !ok || t.Status != model.TransactionPending {
		f.mu.Unlock()
		return nil, nil
	}
	t.Status = model.TransactionSucceeded
	cp := *t
	f.mu.Unlock()
	err := f.enrollments.Create(ctx, &model.Enrollment{UserID: cp.UserID, CourseID: cp.CourseID, Source: model.EnrollmentPurchase})
	return &cp, err
}

func (f *fakeTransactions) MarkFailed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.rows[id]; ok && t.Status == model.TransactionPending {
		t.Status = model.TransactionFailed
	}
	return nil
}

func (f *fakeTransactions) List(_ context.Context, fl model.TransactionFilter) ([]model.Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Transaction
	for _, t := range f.rows {
		if (fl.UserID == "" || t.UserID == fl.UserID) && (fl.Status == "" || t.Status == fl.Status) {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	rows []model.QuizAttempt
}

func (f *fakeAttempts) CreateAttempt(_ context.Context, a *model.QuizAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAttempts) ListAttempts(_ context.Context, userID, lessonID string, limit int) ([]model.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuizAttempt
	for i := len(f.rows) - 1; i >= 0; i-- {
		a := f.rows[i]
		if a.UserID == userID && a.LessonID == lessonID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSubmissions struct {
	mu   sync.Mutex
	rows map[string]*model.Submission
	seq  int
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{rows: map[string]*model.Submission{}}
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	f.seq++
	s.CreatedAt = time.Unix(int64(f.seq), 0)
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) GetLatestForLesson(_ context.Context, userID, lessonID string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Submission
	for _, s := range f.rows {
		if s.UserID != userID || s.LessonID != lessonID || s.State == model.SubmissionUploading {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSubmissions) Update(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeSubmissions) List(_ context.Context, fl model.SubmissionFilter) ([]model.Submission, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for _, s := range f.rows {
		if s.State == model.SubmissionUploading {
			continue
		}
		if fl.State != "" && s.State != fl.State {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (f *fakeSubmissions) ListStaleUploads(_ context.Context, before time.Time, limit int) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for _, s := range f.rows {
		if s.State == model.SubmissionUploading && s.CreatedAt.Before(before) {
			out = append(out, *s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCertificates struct {
	mu   sync.Mutex
	rows []model.Certificate
}

func (f *fakeCertificates) CreateIfAbsent(_ context.Context, c *model.Certificate) (*model.Certificate, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cur := range f.rows {
		if cur.UserID == c.UserID && cur.CourseID == c.CourseID {
			cp := cur
			return &cp, false, nil
		}
	}
	c.ID = uuid.NewString()
	f.rows = append(f.rows, *c)
	cp := *c
	return &cp, true, nil
}

func (f *fakeCertificates) GetByUserCourse(_ context.Context, userID, courseID string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cur := range f.rows {
		if cur.UserID == userID && cur.CourseID == courseID {
			cp := cur
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCertificates) GetBySerial(_ context.Context, serial string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cur := range f.rows {
		if cur.Serial == serial {
			cp := cur
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCertificates) ListByUser(_ context.Context, userID string) ([]model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Certificate
	for _, cur := range f.rows {
		if cur.UserID == userID {
			out = append(out, cur)
		}
	}
	return out, nil
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?op=put&ttl=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?op=get&ttl=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeStore) Head(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(b))}, nil
}

func (f *fakeStore) ReadPrefix(_ context.Context, key string, n int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	if int64(len(b)) > n {
		b = b[:n]
	}
	return append([]byte(nil), b...), nil
}

func (f *fakeStore) Put(_ context.Context, key, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.objects, k)
	}
	return nil
}

func (f *fakeStore) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			delete(f.objects, k)
		}
	}
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type publishedMessage struct {
	Topic   string
	Payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMessage
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, publishedMessage{Topic: topic, Payload: payload})
	return uuid.NewString(), nil
}

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.msgs...)
}

type fakeQueue struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeQueue) Send(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// testEnv wires every service over the local catalog and in-memory fakes.
type testEnv struct {
	local        *repository.LocalStore
	users        *fakeUsers
	enrollments  *fakeEnrollments
	transactions *fakeTransactions
	attempts     *fakeAttempts
	submissions  *fakeSubmissions
	certRepo     *fakeCertificates
	store        *fakeStore
	publisher    *fakePublisher
	queue        *fakeQueue

	courses     CourseService
	enrollment  EnrollmentService
	progress    ProgressService
	quiz        QuizService
	submission  SubmissionService
	certificate CertificateService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local, err := repository.NewLocalStore()
	require.NoError(t, err)

	env := &testEnv{
		local: local,
		users: newFakeUsers(
			model.User{UserID: studentID, Email: "student@example.com", Name: "Student", Role: model.RoleStudent},
			model.User{UserID: adminID, Email: "admin@example.com", Name: "Admin", Role: model.RoleAdmin},
		),
		enrollments: newFakeEnrollments(),
		attempts:    &fakeAttempts{},
		submissions: newFakeSubmissions(),
		certRepo:    &fakeCertificates{},
		store:       newFakeStore(),
		publisher:   &fakePublisher{},
		queue:       &fakeQueue{},
	}
	env.transactions = newFakeTransactions(env.enrollments)

	publicURL := func(key string) string { return "https://cdn.test/" + key }
	env.courses = NewCourseService(local, local, config.CatalogSourceLocal, env.store, publicURL, testLogger)
	env.enrollment = NewEnrollmentService(env.enrollments, env.transactions, env.users, env.courses, nil, testLogger)
	env.certificate = NewCertificateService(CertificateDeps{
		Repo:       env.certRepo,
		Courses:    env.courses,
		Progress:   local,
		Access:     env.enrollment,
		Queue:      env.queue,
		QueueName:  "certificate_queue",
		Publisher:  env.publisher,
		Topic:      "certificate-events",
		SigningKey: []byte("test-signing-key"),
	}, testLogger)
	env.progress = NewProgressService(env.courses, local, env.enrollment, env.certificate, testLogger)
	env.quiz = NewQuizService(env.courses, local, env.attempts, env.enrollment, env.certificate, 70, testLogger)
	env.submission = NewSubmissionService(SubmissionDeps{
		Repo:      env.submissions,
		Progress:  local,
		Users:     env.users,
		Courses:   env.courses,
		Access:    env.enrollment,
		Store:     env.store,
		URLTTL:    10 * time.Minute,
		Publisher: env.publisher,
		Topic:     "submission-events",
		Certs:     env.certificate,
	}, testLogger)
	return env
}

func (e *testEnv) enroll(t *testing.T, userID, courseID string) {
	t.Helper()
	require.NoError(t, e.enrollments.Create(context.Background(), &model.Enrollment{UserID: userID, CourseID: courseID, Source: model.EnrollmentAdmin}))
}

// pdfBytes is the smallest prefix mimetype recognises as a PDF.
var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

// elfBytes is detected as an executable, which submissions refuse.
var elfBytes = append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, make([]byte, 64)...)
