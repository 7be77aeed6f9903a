package stats

import (
	"context"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

const defaultBuffer = 1024

type event struct {
	recipient string
	typ       domain.NotificationType
}

// Snapshot is a point-in-time copy of one recipient's counters.
type Snapshot struct {
	Recipient string                            `json:"recipient"`
	Total     int64                             `json:"total"`
	ByType    map[domain.NotificationType]int64 `json:"byType"`
}

// Aggregator keeps process-local delivery counters per recipient and notification type.
// Record never blocks; when the buffer is full the update is dropped.
type Aggregator struct {
	events  chan event
	logger  *zap.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	counts map[string]map[domain.NotificationType]int64
}

func NewAggregator(buffer int, logger *zap.Logger) *Aggregator {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		events: make(chan event, buffer),
		logger: logger,
		counts: make(map[string]map[domain.NotificationType]int64),
	}
}

// Record queues one delivery for counting. It reports whether the update was accepted.
func (a *Aggregator) Record(recipient string, typ domain.NotificationType) bool {
	if a == nil {
		return false
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false
	}

	select {
	case a.events <- event{recipient: recipient, typ: typ}:
		return true
	default:
		if n := a.dropped.Add(1); n == 1 || n%1000 == 0 {
			a.logger.Warn("stats buffer full, dropping update", zap.Int64("dropped", n))
		}
		return false
	}
}

// Run applies queued updates until ctx is done, then drains whatever is still buffered.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case ev := <-a.events:
			a.apply(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.events:
					a.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Aggregator) apply(ev event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byType, ok := a.counts[ev.recipient]
	if !ok {
		byType = make(map[domain.NotificationType]int64)
		a.counts[ev.recipient] = byType
	}
	byType[ev.typ]++
}

func (a *Aggregator) Snapshot(recipient string) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byType := maps.Clone(a.counts[strings.TrimSpace(recipient)])
	if byType == nil {
		byType = make(map[domain.NotificationType]int64)
	}

	var total int64
	for _, n := range byType {
		total += n
	}
	return Snapshot{Recipient: recipient, Total: total, ByType: byType}
}

func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}
