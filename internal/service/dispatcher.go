package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
	"go.uber.org/zap"
)

const maxBatchSize = 1000

// SenderResolver returns the sender bound to a channel.
type SenderResolver interface {
	Resolve(channel domain.Channel) (provider.Sender, error)
}

// StatsRecorder receives successful in-app deliveries. Record must not block.
type StatsRecorder interface {
	Record(recipient string, typ domain.NotificationType) bool
}

// TaskRunner executes submitted work, either on a pooled goroutine or inline.
type TaskRunner interface {
	Submit(task func()) (inline bool)
}

// DispatchResult is the eventual outcome of an asynchronous dispatch.
type DispatchResult struct {
	Response *domain.NotificationResponse
	Err      error
}

// BatchRejection describes one request of a batch that was not accepted.
type BatchRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Total      int              `json:"total"`
	Accepted   int              `json:"accepted"`
	Rejected   int              `json:"rejected"`
	Rejections []BatchRejection `json:"rejections,omitempty"`
}

// Dispatcher validates a request, records it, and drives the retry policy around the
// channel sender until the log row reaches SENT or FAILED.
type Dispatcher struct {
	senders     SenderResolver
	logs        repository.NotificationLogRepository
	attempts    repository.AttemptRepository
	policy      *retry.Policy
	rateLimiter ratelimit.RateLimiter
	runner      TaskRunner
	stats       StatsRecorder
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

type DispatcherOption func(*Dispatcher)

func WithAttemptRepository(attempts repository.AttemptRepository) DispatcherOption {
	return func(d *Dispatcher) { d.attempts = attempts }
}

func WithRateLimiter(limiter ratelimit.RateLimiter) DispatcherOption {
	return func(d *Dispatcher) {
		if limiter != nil {
			d.rateLimiter = limiter
		}
	}
}

func WithTaskRunner(runner TaskRunner) DispatcherOption {
	return func(d *Dispatcher) { d.runner = runner }
}

func WithStatsRecorder(stats StatsRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.stats = stats }
}

func WithMetrics(metrics *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metrics }
}

func NewDispatcher(
	senders SenderResolver,
	logs repository.NotificationLogRepository,
	policy *retry.Policy,
	logger *zap.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if senders == nil {
		return nil, fmt.Errorf("sender resolver is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		senders:     senders,
		logs:        logs,
		policy:      policy,
		rateLimiter: ratelimit.Unlimited{},
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// MaxAttempts is the retry bound used both for sends and for recovery eligibility.
func (d *Dispatcher) MaxAttempts() int { return d.policy.MaxAttempts() }

// Dispatch sends req synchronously. Validation and unsupported-channel failures return
// before any log row exists; every other outcome leaves exactly one row in SENT or FAILED.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, sender, err := d.prepare(req)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, req, sender)
}

// DispatchAsync validates req and resolves its sender on the calling goroutine, then hands
// the rest of the pipeline to the task runner. The returned channel yields exactly one
// result. The dispatch is detached from ctx cancellation.
func (d *Dispatcher) DispatchAsync(ctx context.Context, req domain.NotificationRequest) (<-chan DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, sender, err := d.prepare(req)
	if err != nil {
		return nil, err
	}

	result := make(chan DispatchResult, 1)
	detached := context.WithoutCancel(ctx)
	task := func() {
		d.metrics.IncAsyncInFlight()
		defer d.metrics.DecAsyncInFlight()

		resp, err := d.dispatch(detached, req, sender)
		result <- DispatchResult{Response: resp, Err: err}
	}

	if d.runner == nil {
		go task()
		return result, nil
	}
	if inline := d.runner.Submit(task); inline {
		d.metrics.IncAsyncCallerRuns()
	}
	return result, nil
}

// DispatchBatch accepts every valid request for asynchronous dispatch and reports aggregate
// counts instead of per-item errors.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []domain.NotificationRequest) (*BatchResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: batch must contain at least one notification", domain.ErrValidation)
	}
	if len(reqs) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds limit %d", domain.ErrValidation, len(reqs), maxBatchSize)
	}

	result := &BatchResult{Total: len(reqs)}
	for i, req := range reqs {
		if _, err := d.DispatchAsync(ctx, req); err != nil {
			result.Rejected++
			result.Rejections = append(result.Rejections, BatchRejection{Index: i, Reason: err.Error()})
			continue
		}
		result.Accepted++
	}

	d.logger.Info("batch accepted",
		zap.Int("total", result.Total),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

// Resend rebuilds a request from the stored row and dispatches it as a brand-new chain.
// Only lookup failures are returned as errors; a failed redispatch reports false.
func (d *Dispatcher) Resend(ctx context.Context, id string) (bool, error) {
	original, err := d.logs.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}

	resp, err := d.Dispatch(ctx, original.ToRequest())
	if err != nil {
		observability.WithContextLogger(d.logger, ctx).Warn("resend failed",
			zap.String("originalLogId", original.ID),
			zap.String("channel", original.Channel.String()),
			zap.Error(err),
		)
		return false, nil
	}
	return resp != nil && resp.Success, nil
}

func (d *Dispatcher) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	return d.logs.GetByID(ctx, strings.TrimSpace(id))
}

func (d *Dispatcher) History(ctx context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error) {
	return d.logs.List(ctx, params.Normalize())
}

// FailedNotifications lists rows the recovery loop would replay, oldest first. A
// non-positive limit returns all of them.
func (d *Dispatcher) FailedNotifications(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	return d.logs.ListRetryable(ctx, d.policy.MaxAttempts(), limit)
}

func (d *Dispatcher) Attempts(ctx context.Context, logID string) ([]domain.NotificationAttempt, error) {
	if _, err := d.logs.GetByID(ctx, logID); err != nil {
		return nil, err
	}
	if d.attempts == nil {
		return []domain.NotificationAttempt{}, nil
	}
	return d.attempts.GetByLogID(ctx, logID)
}

func (d *Dispatcher) prepare(req domain.NotificationRequest) (domain.NotificationRequest, provider.Sender, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return req, nil, err
	}

	sender, err := d.senders.Resolve(req.Channel)
	if err != nil {
		return req, nil, err
	}
	return req, sender, nil
}

// attemptState tracks what the retry loop observed so the final error can be classified.
type attemptState struct {
	attempts  int
	sawKnown  bool
	lastError error
}

func (d *Dispatcher) dispatch(ctx context.Context, req domain.NotificationRequest, sender provider.Sender) (*domain.NotificationResponse, error) {
	entry := domain.NewPendingLog(d.newID(), req, d.now().UTC())
	if err := d.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create notification log: %w", err)
	}

	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("logId", entry.ID),
		zap.String("channel", req.Channel.String()),
	)
	ctx = provider.ContextWithLogID(ctx, entry.ID)

	state := &attemptState{}
	op := func(ctx context.Context, attempt int) (*domain.NotificationResponse, error) {
		state.attempts = attempt
		return d.attempt(ctx, entry.ID, req, sender, attempt, state)
	}
	beforeRetry := func(ctx context.Context, attempt int) {
		d.metrics.IncRetry(req.Channel)
		d.transition(ctx, entry, logger, func(l *domain.NotificationLog) error {
			return l.MarkRetrying(attempt, d.now().UTC())
		})
		logger.Info("retrying notification", zap.Int("attempt", attempt))
	}

	resp, err := retry.Execute(ctx, d.policy, op, beforeRetry)

	// The row must reach a terminal state even when the caller has gone away.
	finalizeCtx := context.WithoutCancel(ctx)

	if err == nil {
		providerName := resp.Provider()
		if providerName == "" {
			providerName = sender.Name()
		}
		d.transition(finalizeCtx, entry, logger, func(l *domain.NotificationLog) error {
			return l.MarkSent(providerName, resp.ProviderMessageID, state.attempts, d.now().UTC())
		})
		d.metrics.IncNotificationSent(req.Channel, providerName)

		if req.Channel == domain.ChannelInApp && d.stats != nil {
			d.stats.Record(req.Recipient, req.Type)
		}

		resp.NotificationID = entry.ID
		logger.Info("notification sent",
			zap.String("provider", providerName),
			zap.Int("attempts", state.attempts),
		)
		return resp, nil
	}

	surfaced, attempts, reason := d.classifyFailure(entry.ID, err, state)
	d.transition(finalizeCtx, entry, logger, func(l *domain.NotificationLog) error {
		return l.MarkFailed(err.Error(), attempts, d.now().UTC())
	})
	d.metrics.IncNotificationFailed(req.Channel, reason)

	logger.Warn("notification failed",
		zap.Int("attempts", attempts),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return nil, surfaced
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	logID string,
	req domain.NotificationRequest,
	sender provider.Sender,
	attempt int,
	state *attemptState,
) (*domain.NotificationResponse, error) {
	if err := d.rateLimiter.Wait(ctx, req.Channel); err != nil {
		state.sawKnown = true
		return nil, &provider.ProviderError{
			Provider:  sender.Name(),
			Message:   "rate limiter unavailable",
			Transient: true,
			Cause:     err,
		}
	}

	start := d.now()
	resp, err := safeSend(ctx, sender, req)
	duration := d.now().Sub(start)

	if err == nil && (resp == nil || !resp.Success) {
		message := "provider reported failure"
		if resp != nil && strings.TrimSpace(resp.Message) != "" {
			message = resp.Message
		}
		err = fmt.Errorf("%w: %s", domain.ErrSendFailed, message)
	}

	d.metrics.ObserveSendAttempt(req.Channel, err == nil, duration)
	d.recordAttempt(ctx, logID, sender.Name(), attempt, resp, err, duration)

	if err != nil {
		state.lastError = err
		var providerErr *provider.ProviderError
		if errors.As(err, &providerErr) || errors.Is(err, domain.ErrSendFailed) {
			state.sawKnown = true
		}
		if provider.IsPermanent(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return resp, nil
}

// safeSend turns a panic inside the sender into an ordinary send error.
func safeSend(ctx context.Context, sender provider.Sender, req domain.NotificationRequest) (resp *domain.NotificationResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("sender %s panicked: %v", sender.Name(), r)
		}
	}()
	return sender.Send(ctx, req)
}

// classifyFailure maps the retry outcome to the error surfaced to the caller, the attempt
// count to persist, and a metrics reason.
func (d *Dispatcher) classifyFailure(logID string, err error, state *attemptState) (error, int, string) {
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		return err, state.attempts, "permanent_error"
	}

	if !state.sawKnown && state.lastError != nil {
		return state.lastError, exhausted.Attempts, "unexpected_error"
	}

	return &domain.RetryExhaustedError{
		LogID:       logID,
		MaxAttempts: d.policy.MaxAttempts(),
		Attempts:    exhausted.Attempts,
		Cause:       exhausted.Err,
	}, exhausted.Attempts, "retry_exhausted"
}

// transition applies mutate to entry and persists it guarded by the previous status. A
// failed write is logged; the in-memory entry still reflects the intended state.
func (d *Dispatcher) transition(ctx context.Context, entry *domain.NotificationLog, logger *zap.Logger, mutate func(*domain.NotificationLog) error) {
	previous := entry.Status
	if err := mutate(entry); err != nil {
		logger.Error("invalid notification log transition", zap.Error(err))
		return
	}
	if err := d.logs.UpdateTransition(ctx, entry, previous); err != nil {
		logger.Error("failed to persist notification log transition",
			zap.String("from", previous.String()),
			zap.String("to", entry.Status.String()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) recordAttempt(
	ctx context.Context,
	logID string,
	providerName string,
	attemptNumber int,
	resp *domain.NotificationResponse,
	sendErr error,
	duration time.Duration,
) {
	if d.attempts == nil {
		return
	}

	var providerMessageID *string
	if resp != nil && resp.ProviderMessageID != "" {
		value := resp.ProviderMessageID
		providerMessageID = &value
	}
	if name := resp.Provider(); name != "" {
		providerName = name
	}

	var attemptErr *string
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value
	}

	attempt := &domain.NotificationAttempt{
		ID:                d.newID(),
		LogID:             logID,
		AttemptNumber:     attemptNumber,
		Provider:          providerName,
		ProviderMessageID: providerMessageID,
		Error:             attemptErr,
		DurationMillis:    duration.Milliseconds(),
		CreatedAt:         d.now().UTC(),
	}

	if err := d.attempts.Create(context.WithoutCancel(ctx), attempt); err != nil {
		d.logger.Warn("failed to record notification attempt",
			zap.String("logId", logID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}
