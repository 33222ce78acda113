package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// ---- ProblemStore mock ----

var _ repository.ProblemStore = (*ProblemStore)(nil)

// ProblemStore is an in-memory repository.ProblemStore.
type ProblemStore struct {
	mu       sync.RWMutex
	problems map[int64]*domain.Problem

	GetProblemFn func(ctx context.Context, id int64) (*domain.Problem, error)
}

// NewProblemStore creates a store preloaded with problems.
func NewProblemStore(problems ...*domain.Problem) *ProblemStore {
	m := &ProblemStore{problems: make(map[int64]*domain.Problem)}
	for _, p := range problems {
		m.problems[p.ID] = p
	}
	return m
}

func (m *ProblemStore) GetProblem(ctx context.Context, id int64) (*domain.Problem, error) {
	if m.GetProblemFn != nil {
		return m.GetProblemFn(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.problems[id]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	return p, nil
}

// ---- SnippetStore mock ----

var _ repository.SnippetStore = (*SnippetStore)(nil)

// SnippetStore is an in-memory repository.SnippetStore.
type SnippetStore struct {
	mu        sync.Mutex
	templates map[string]string

	FindTemplateFn func(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error)

	// Calls counts FindTemplate invocations.
	Calls int
}

// NewSnippetStore creates an empty snippet store.
func NewSnippetStore() *SnippetStore {
	return &SnippetStore{templates: make(map[string]string)}
}

// Put stores a template for (problemID, lang).
func (m *SnippetStore) Put(problemID int64, lang domain.Language, tpl string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[snippetKey(problemID, lang)] = tpl
}

func (m *SnippetStore) FindTemplate(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.FindTemplateFn != nil {
		return m.FindTemplateFn(ctx, problemID, lang)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[snippetKey(problemID, lang)]
	return tpl, ok, nil
}

func snippetKey(problemID int64, lang domain.Language) string {
	return fmt.Sprintf("%d/%s", problemID, lang)
}

// ---- SubmissionStore mock ----

var _ repository.SubmissionStore = (*SubmissionStore)(nil)

// SubmissionStore is an in-memory repository.SubmissionStore. It stores
// copies so callers cannot mutate persisted state behind its back.
type SubmissionStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*domain.Submission

	SaveFn         func(ctx context.Context, sub *domain.Submission) error
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error
	SetVerdictFn   func(ctx context.Context, id uuid.UUID, verdict *domain.Verdict) error

	// StatusHistory records every status written, in order.
	StatusHistory []domain.SubmissionStatus
}

// NewSubmissionStore creates an empty submission store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{subs: make(map[uuid.UUID]*domain.Submission)}
}

func (m *SubmissionStore) Save(ctx context.Context, sub *domain.Submission) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(ctx, sub); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.subs {
		if existing.UserID == sub.UserID && existing.ProblemID == sub.ProblemID && id != sub.ID {
			delete(m.subs, id)
		}
	}
	cp := *sub
	m.subs[sub.ID] = &cp
	m.StatusHistory = append(m.StatusHistory, sub.Status)
	return nil
}

func (m *SubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *SubmissionStore) FindByUserAndProblem(ctx context.Context, userID, problemID int64) (*domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.UserID == userID && sub.ProblemID == problemID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *SubmissionStore) ListByUser(ctx context.Context, userID int64) ([]*domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Submission
	for _, sub := range m.subs {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *SubmissionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus) error {
	if m.UpdateStatusFn != nil {
		if err := m.UpdateStatusFn(ctx, id, status); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.Status = status
	sub.UpdatedAt = time.Now().UTC()
	m.StatusHistory = append(m.StatusHistory, status)
	return nil
}

func (m *SubmissionStore) SetVerdict(ctx context.Context, id uuid.UUID, verdict *domain.Verdict) error {
	if m.SetVerdictFn != nil {
		if err := m.SetVerdictFn(ctx, id, verdict); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	v := *verdict
	sub.Verdict = &v
	sub.Status = verdict.Status
	sub.UpdatedAt = time.Now().UTC()
	m.StatusHistory = append(m.StatusHistory, verdict.Status)
	return nil
}

// History returns a snapshot of StatusHistory.
func (m *SubmissionStore) History() []domain.SubmissionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.SubmissionStatus(nil), m.StatusHistory...)
}

// ---- JudgingLock mock ----

var _ repository.JudgingLock = (*JudgingLock)(nil)

// JudgingLock is an in-process repository.JudgingLock.
type JudgingLock struct {
	mu   sync.Mutex
	held map[string]string

	AcquireFn func(ctx context.Context, userID, problemID int64, ttl time.Duration) (string, bool, error)

	ReleaseCalls int
}

// NewJudgingLock creates an unlocked JudgingLock.
func NewJudgingLock() *JudgingLock {
	return &JudgingLock{held: make(map[string]string)}
}

func (m *JudgingLock) Acquire(ctx context.Context, userID, problemID int64, ttl time.Duration) (string, bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, userID, problemID, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d:%d", userID, problemID)
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	m.held[key] = token
	return token, true, nil
}

func (m *JudgingLock) Release(ctx context.Context, userID, problemID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	key := fmt.Sprintf("%d:%d", userID, problemID)
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// Held reports whether the pair is currently locked.
func (m *JudgingLock) Held(userID, problemID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[fmt.Sprintf("%d:%d", userID, problemID)]
	return ok
}

// ---- Executor mock ----

// Executor is a scripted sandbox executor.
type Executor struct {
	mu sync.Mutex

	ExecuteFn func(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult

	ExecuteCalls []*domain.ExecutionRequest
}

func (m *Executor) Execute(ctx context.Context, req *domain.ExecutionRequest) *domain.ExecutionResult {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, req)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, req)
	}
	return &domain.ExecutionResult{Stdout: req.Stdin, TimeUsedMs: 42}
}

// Calls returns the number of Execute invocations.
func (m *Executor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecuteCalls)
}

// ---- JobPublisher mock ----

var _ repository.JobPublisher = (*JobPublisher)(nil)

// JobPublisher records published jobs.
type JobPublisher struct {
	mu        sync.Mutex
	Published []*domain.GradeJob
	PublishFn func(ctx context.Context, job *domain.GradeJob) error
}

func (m *JobPublisher) Publish(ctx context.Context, job *domain.GradeJob) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, job)
	return nil
}

func (m *JobPublisher) Close() error {
	return nil
}
