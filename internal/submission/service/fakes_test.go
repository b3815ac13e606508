package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"competenest/internal/common/db"
	"competenest/internal/common/mq"
	"competenest/internal/common/storage"
	"competenest/internal/judge"
	"competenest/internal/submission/model"
	"competenest/internal/submission/repository"
)

// fakeDatabase satisfies db.Database for service tests. Transaction
// holds a mutex for the whole closure, which models the serialization
// the row lock provides in MySQL.
type fakeDatabase struct {
	mu sync.Mutex
}

func (f *fakeDatabase) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeDatabase) QueryRow(context.Context, string, ...interface{}) db.Row {
	return nil
}

func (f *fakeDatabase) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeDatabase) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{})
}

func (f *fakeDatabase) Ping(context.Context) error { return nil }
func (f *fakeDatabase) Close() error               { return nil }

func dbProviderForTest() db.Provider {
	return db.NewStaticProvider(&fakeDatabase{})
}

type fakeTx struct{}

func (t *fakeTx) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *fakeTx) QueryRow(context.Context, string, ...interface{}) db.Row {
	return nil
}

func (t *fakeTx) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

// memStore is an in-memory submission store shared by the fake
// repositories. Access is guarded by its own mutex so non-transactional
// reads stay safe too.
type memStore struct {
	mu          sync.Mutex
	submissions map[string]*model.Submission
	testcases   map[string]*model.SubmittedTestcase
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[string]*model.Submission),
		testcases:   make(map[string]*model.SubmittedTestcase),
	}
}

type memSubmissionRepo struct {
	store     *memStore
	createErr error
}

func (r *memSubmissionRepo) Create(_ context.Context, _ db.Transaction, submission *model.Submission) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *submission
	r.store.submissions[submission.SubmissionID] = &copied
	return nil
}

func (r *memSubmissionRepo) GetByID(_ context.Context, _ db.Transaction, submissionID string) (*model.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	submission, ok := r.store.submissions[submissionID]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	copied := *submission
	return &copied, nil
}

func (r *memSubmissionRepo) GetForUpdate(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	return r.GetByID(ctx, tx, submissionID)
}

func (r *memSubmissionRepo) ApplyEvaluation(_ context.Context, _ db.Transaction, submissionID string, acceptedDelta int, status model.SubmissionStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	submission, ok := r.store.submissions[submissionID]
	if !ok {
		return repository.ErrSubmissionNotFound
	}
	submission.EvaluatedTestcases++
	submission.AcceptedTestcases += acceptedDelta
	submission.Status = status
	submission.UpdatedAt = time.Now()
	return nil
}

type memTestcaseRepo struct {
	store *memStore
}

func (r *memTestcaseRepo) CreateBatch(_ context.Context, _ db.Transaction, rows []*model.SubmittedTestcase) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, row := range rows {
		copied := *row
		r.store.testcases[row.ID] = &copied
	}
	return nil
}

func (r *memTestcaseRepo) GetByID(_ context.Context, _ db.Transaction, id string) (*model.SubmittedTestcase, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row, ok := r.store.testcases[id]
	if !ok {
		return nil, repository.ErrSubmittedTestcaseNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memTestcaseRepo) UpdateResult(_ context.Context, _ db.Transaction, id string, output string, statusCode int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row, ok := r.store.testcases[id]
	if !ok {
		return repository.ErrSubmittedTestcaseNotFound
	}
	row.Output = output
	row.StatusCode = statusCode
	row.UpdatedAt = time.Now()
	return nil
}

func (r *memTestcaseRepo) ListBySubmission(_ context.Context, _ db.Transaction, submissionID string) ([]*model.SubmittedTestcase, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var rows []*model.SubmittedTestcase
	for _, row := range r.store.testcases {
		if row.SubmissionID == submissionID {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	return rows, nil
}

type fakeProblemRepo struct {
	problem   *model.Problem
	testcases []*model.Testcase
	contest   *model.Contest
}

func (r *fakeProblemRepo) GetByID(_ context.Context, problemID string) (*model.Problem, error) {
	if r.problem == nil || r.problem.ProblemID != problemID {
		return nil, repository.ErrProblemNotFound
	}
	return r.problem, nil
}

func (r *fakeProblemRepo) ListTestcases(context.Context, string) ([]*model.Testcase, error) {
	return r.testcases, nil
}

func (r *fakeProblemRepo) GetContest(_ context.Context, contestID string) (*model.Contest, error) {
	if r.contest == nil || r.contest.ContestID != contestID {
		return nil, repository.ErrContestNotFound
	}
	return r.contest, nil
}

type fakeStorage struct {
	mu         sync.Mutex
	presigned  []string
	presignErr error
	failOnKey  string
}

func (s *fakeStorage) GetObject(context.Context, string, string) (storage.ObjectReader, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *fakeStorage) PutObject(context.Context, string, string, storage.ObjectReader, int64, string) error {
	return fmt.Errorf("not implemented")
}

func (s *fakeStorage) PresignGetObject(_ context.Context, bucket, objectKey string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presignErr != nil && (s.failOnKey == "" || s.failOnKey == objectKey) {
		return "", s.presignErr
	}
	url := "https://storage.test/" + bucket + "/" + objectKey
	s.presigned = append(s.presigned, objectKey)
	return url, nil
}

func (s *fakeStorage) PresignPutObject(context.Context, string, string, time.Duration) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (s *fakeStorage) StatObject(context.Context, string, string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, fmt.Errorf("not implemented")
}

type fakeJudge struct {
	mu      sync.Mutex
	batches [][]judge.Job
	err     error
}

func (j *fakeJudge) SubmitBatch(_ context.Context, jobs []judge.Job) ([]judge.Token, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	j.batches = append(j.batches, jobs)
	tokens := make([]judge.Token, len(jobs))
	for i := range tokens {
		tokens[i] = judge.Token{Token: fmt.Sprintf("token-%d", i)}
	}
	return tokens, nil
}

func (j *fakeJudge) Submit(ctx context.Context, job judge.Job) (judge.Token, error) {
	tokens, err := j.SubmitBatch(ctx, []judge.Job{job})
	if err != nil {
		return judge.Token{}, err
	}
	return tokens[0], nil
}

// fakeCache is an in-memory cache.Cache. TTLs are accepted and ignored;
// the tests that use it never cross an expiry boundary.
type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values: make(map[string]string),
		counts: make(map[string]int64),
	}
}

func (c *fakeCache) Ping(context.Context) error { return nil }
func (c *fakeCache) Close() error               { return nil }

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = fmt.Sprint(value)
	return nil
}

func (c *fakeCache) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = fmt.Sprint(value)
	return true, nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
		delete(c.counts, key)
	}
	return nil
}

func (c *fakeCache) Expire(context.Context, string, time.Duration) error { return nil }

func (c *fakeCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

type publishedEvent struct {
	topic string
	event interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *fakeNotifier) Publish(topic string, event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{topic: topic, event: event})
}

func (n *fakeNotifier) all() []publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]publishedEvent, len(n.events))
	copy(out, n.events)
	return out
}

type fakeMQ struct {
	mu       sync.Mutex
	messages map[string][]*mq.Message
}

func newFakeMQ() *fakeMQ {
	return &fakeMQ{messages: make(map[string][]*mq.Message)}
}

func (q *fakeMQ) Publish(_ context.Context, topic string, message *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages[topic] = append(q.messages[topic], message)
	return nil
}

func (q *fakeMQ) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, message := range messages {
		if err := q.Publish(ctx, topic, message); err != nil {
			return err
		}
	}
	return nil
}

func (q *fakeMQ) Ping(context.Context) error { return nil }
func (q *fakeMQ) Close() error               { return nil }

func (q *fakeMQ) count(topic string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages[topic])
}
