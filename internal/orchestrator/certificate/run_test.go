package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lms/internal/config"
	"lms/internal/model"
	"lms/internal/pgmq"
	"lms/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	queue   string
	payload []byte
}

type fakeQueue struct {
	mu      sync.Mutex
	pending []*pgmq.Message
	sent    []sent
	deleted []int64
}

func (q *fakeQueue) ReadWithPoll(ctx context.Context, _ string, _, _, _ int) ([]*pgmq.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		time.Sleep(time.Millisecond)
		return nil, ctx.Err()
	}
	msgs := q.pending
	q.pending = nil
	return msgs, nil
}

func (q *fakeQueue) Send(_ context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, sent{queue: queue, payload: payload})
	return nil
}

func (q *fakeQueue) Delete(_ context.Context, _ string, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, ids...)
	return nil
}

type fakeIssuer struct {
	errs  []error
	calls int
}

func (f *fakeIssuer) Issue(_ context.Context, userID, courseID string) (*model.Certificate, bool, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, false, err
		}
	}
	return &model.Certificate{UserID: userID, CourseID: courseID, Serial: "LMS-2026-ABCDEF012345"}, true, nil
}

func testConfig() *config.Config {
	return &config.Config{
		CertificateQueueName:           "certificate_queue",
		CertificateDeadLetterQueueName: "certificate_queue_dlq",
		CertificateMaxRetries:          3,
	}
}

func newTestWorker(q *fakeQueue, issuer *fakeIssuer) *Worker {
	w := NewWorker(q, issuer, testConfig(), zerolog.Nop())
	w.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return w
}

func jobMessage(t *testing.T, id int64, readCount int) *pgmq.Message {
	t.Helper()
	data, err := json.Marshal(service.CertificateJob{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	return &pgmq.Message{ID: id, ReadCount: readCount, Data: data}
}

func TestProcess_Issues(t *testing.T) {
	q := &fakeQueue{}
	issuer := &fakeIssuer{}
	newTestWorker(q, issuer).Process(context.Background(), jobMessage(t, 7, 1))

	assert.Equal(t, 1, issuer.calls)
	assert.Equal(t, []int64{7}, q.deleted)
	assert.Empty(t, q.sent)
}

func TestProcess_RetriesTransientErrors(t *testing.T) {
	q := &fakeQueue{}
	issuer := &fakeIssuer{errs: []error{errors.New("db timeout"), nil}}
	newTestWorker(q, issuer).Process(context.Background(), jobMessage(t, 8, 1))

	assert.Equal(t, 2, issuer.calls)
	assert.Equal(t, []int64{8}, q.deleted)
	assert.Empty(t, q.sent)
}

func TestProcess_DeadLettersAfterRetries(t *testing.T) {
	q := &fakeQueue{}
	boom := errors.New("db down")
	issuer := &fakeIssuer{errs: []error{boom, boom, boom}}
	newTestWorker(q, issuer).Process(context.Background(), jobMessage(t, 9, 1))

	assert.Equal(t, 3, issuer.calls)
	require.Len(t, q.sent, 1)
	assert.Equal(t, "certificate_queue_dlq", q.sent[0].queue)
	assert.Equal(t, []int64{9}, q.deleted)
}

func TestProcess_PermanentErrorsAreDropped(t *testing.T) {
	for _, err := range []error{service.ErrNotEligible, service.ErrNotEnrolled, service.ErrCourseNotFound} {
		q := &fakeQueue{}
		issuer := &fakeIssuer{errs: []error{err}}
		newTestWorker(q, issuer).Process(context.Background(), jobMessage(t, 10, 1))

		assert.Equal(t, 1, issuer.calls, err.Error())
		assert.Equal(t, []int64{10}, q.deleted)
		assert.Empty(t, q.sent)
	}
}

func TestProcess_MalformedAndRedelivered(t *testing.T) {
	q := &fakeQueue{}
	issuer := &fakeIssuer{}
	w := newTestWorker(q, issuer)

	w.Process(context.Background(), &pgmq.Message{ID: 1, ReadCount: 1, Data: []byte(`{"user_id":""}`)})
	w.Process(context.Background(), jobMessage(t, 2, 4))

	assert.Zero(t, issuer.calls)
	assert.Equal(t, []int64{1, 2}, q.deleted)
	require.Len(t, q.sent, 1)
	assert.Equal(t, "certificate_queue_dlq", q.sent[0].queue)
}

func TestRun_StopsOnCancel(t *testing.T) {
	q := &fakeQueue{pending: []*pgmq.Message{jobMessage(t, 11, 1)}}
	issuer := &fakeIssuer{}
	w := newTestWorker(q, issuer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.deleted) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
