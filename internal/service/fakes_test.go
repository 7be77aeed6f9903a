package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
)

// memoryLogRepo is an in-memory NotificationLogRepository that enforces the same guarded
// transition semantics as the SQL implementation.
type memoryLogRepo struct {
	mu          sync.Mutex
	rows        map[string]domain.NotificationLog
	order       []string
	transitions map[string][]domain.Status
	createErr   error
	listErr     error
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{
		rows:        make(map[string]domain.NotificationLog),
		transitions: make(map[string][]domain.Status),
	}
}

func (r *memoryLogRepo) Create(_ context.Context, l *domain.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.rows[l.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrConflict, l.ID)
	}
	r.rows[l.ID] = *l
	r.order = append(r.order, l.ID)
	r.transitions[l.ID] = []domain.Status{l.Status}
	return nil
}

func (r *memoryLogRepo) UpdateTransition(_ context.Context, l *domain.NotificationLog, expected domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[l.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != expected {
		return fmt.Errorf("%w: status is %s, expected %s", domain.ErrConflict, current.Status, expected)
	}
	r.rows[l.ID] = *l
	r.transitions[l.ID] = append(r.transitions[l.ID], l.Status)
	return nil
}

func (r *memoryLogRepo) GetByID(_ context.Context, id string) (*domain.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (r *memoryLogRepo) List(_ context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NotificationLog, 0, len(r.order))
	for _, id := range r.order {
		row := r.rows[id]
		if params.Recipient != nil && row.Recipient != *params.Recipient {
			continue
		}
		if params.Channel != nil && row.Channel != *params.Channel {
			continue
		}
		if params.Status != nil && row.Status != *params.Status {
			continue
		}
		out = append(out, row)
	}
	return out, int64(len(out)), nil
}

func (r *memoryLogRepo) ListRetryable(_ context.Context, maxAttempts, limit int) ([]domain.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.NotificationLog
	for _, id := range r.order {
		row := r.rows[id]
		if row.IsRetryable(maxAttempts) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryLogRepo) put(l domain.NotificationLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[l.ID] = l
	r.order = append(r.order, l.ID)
}

func (r *memoryLogRepo) get(id string) domain.NotificationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *memoryLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memoryLogRepo) statuses(id string) []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Status(nil), r.transitions[id]...)
}

type memoryAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.NotificationAttempt
}

func (r *memoryAttemptRepo) Create(_ context.Context, a *domain.NotificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memoryAttemptRepo) GetByLogID(_ context.Context, logID string) ([]domain.NotificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.NotificationAttempt
	for _, a := range r.attempts {
		if a.LogID == logID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSender struct {
	name    string
	channel domain.Channel
	mu      sync.Mutex
	calls   int
	sendFn  func(ctx context.Context, attempt int, req domain.NotificationRequest) (*domain.NotificationResponse, error)
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Supports(channel domain.Channel) bool { return channel == f.channel }

func (f *fakeSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, call, req)
	}
	return okResponse(f.name, "msg-1"), nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResponse(providerName, messageID string) *domain.NotificationResponse {
	return &domain.NotificationResponse{
		Success:           true,
		ProviderMessageID: messageID,
		Details:           map[string]any{domain.DetailProvider: providerName},
	}
}

type fakeStats struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeStats) Record(recipient string, typ domain.NotificationType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recipient+"/"+typ.String())
	return true
}

type inlineRunner struct{}

func (inlineRunner) Submit(task func()) bool {
	task()
	return true
}

func transientErr(msg string) error {
	return &provider.ProviderError{Provider: "fake", StatusCode: 503, Message: msg, Transient: true}
}

func permanentErr(msg string) error {
	return &provider.ProviderError{Provider: "fake", StatusCode: 400, Message: msg, Transient: false}
}

func newTestPolicy(t testing.TB, maxAttempts int) *retry.Policy {
	policy, err := retry.New(retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Millisecond,
	}, retry.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	if err != nil {
		t.Fatalf("retry.New() error = %v", err)
	}
	return policy
}

func newTestRegistry(t testing.TB, senders ...provider.Sender) *provider.Registry {
	registry, err := provider.NewRegistry(senders...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return registry
}
