// Package deferred runs queued full analyses in the background, one at a
// time. Deferred-mode requests answer with a metrics bundle immediately and
// park the LLM rerun here.
package deferred

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/metrics"
	"github.com/ternarybob/aestimo/internal/models"
)

// bufferSize covers normal bursts; overflow beyond it spills into a slice so
// Enqueue never blocks the answering request.
const bufferSize = 64

// Queue is a single-consumer FIFO of analysis requests.
type Queue struct {
	logger   arbor.ILogger
	analyses interfaces.AnalysisService
	events   interfaces.EventService
	metrics  *metrics.Registry

	mu       sync.Mutex
	buf      chan models.AnalysisRequest
	overflow []models.AnalysisRequest
	pending  map[string]struct{}
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ interfaces.DeferredQueue = (*Queue)(nil)

// NewQueue wires the queue to the analysis service it replays requests on.
func NewQueue(analyses interfaces.AnalysisService, events interfaces.EventService, registry *metrics.Registry, logger arbor.ILogger) *Queue {
	return &Queue{
		logger:   logger,
		analyses: analyses,
		events:   events,
		metrics:  registry,
		buf:      make(chan models.AnalysisRequest, bufferSize),
		pending:  make(map[string]struct{}),
	}
}

// Enqueue appends a request. A request whose key is already queued or still
// running is dropped so repeated deferred hits cannot pile up reruns.
func (q *Queue) Enqueue(req models.AnalysisRequest) error {
	key := dedupeKey(req)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pending[key]; exists {
		q.logger.Debug().
			Str("key", key).
			Msg("Deferred request already pending, dropped")
		return nil
	}
	q.pending[key] = struct{}{}

	select {
	case q.buf <- req:
	default:
		q.overflow = append(q.overflow, req)
	}
	q.recordDepthLocked()
	return nil
}

// Depth reports requests queued and not yet started.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) + len(q.overflow)
}

// Start launches the consumer goroutine. Calling Start on a running queue is
// a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.running = true
	q.cancel = cancel
	q.done = make(chan struct{})
	done := q.done
	q.mu.Unlock()

	q.logger.Info().Msg("Deferred queue started")
	common.SafeGo(q.logger, "deferred-queue", func() {
		defer close(done)
		q.run(ctx)
	})
}

// Stop cancels the consumer and waits for the in-flight request to unwind.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	done := q.done
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	<-done
	q.logger.Info().
		Int("queued", q.Depth()).
		Msg("Deferred queue stopped")
}

func (q *Queue) run(ctx context.Context) {
	for {
		q.refill()
		select {
		case <-ctx.Done():
			return
		case req := <-q.buf:
			q.process(ctx, req)
		}
	}
}

// refill moves spilled requests into the channel in arrival order. Overflow
// entries always sit behind buffered ones, so FIFO order holds.
func (q *Queue) refill() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.overflow) > 0 {
		select {
		case q.buf <- q.overflow[0]:
			q.overflow = q.overflow[1:]
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, req models.AnalysisRequest) {
	q.mu.Lock()
	q.recordDepthLocked()
	q.mu.Unlock()

	started := time.Now()
	_, err := q.analyses.Analyze(ctx, req)

	key := dedupeKey(req)
	q.mu.Lock()
	delete(q.pending, key)
	q.recordDepthLocked()
	q.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the run, not a task failure.
		return
	}

	payload := map[string]interface{}{
		"date":        req.Date,
		"model":       req.EffectiveModel(),
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		q.logger.Warn().
			Err(err).
			Str("ticker", req.Ticker).
			Str("date", req.Date).
			Msg("Deferred analysis failed")
		payload["error"] = err.Error()
	} else {
		q.logger.Info().
			Str("ticker", req.Ticker).
			Str("date", req.Date).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("Deferred analysis completed")
	}
	q.publish(req.Ticker, payload)
}

func (q *Queue) publish(ticker string, payload map[string]interface{}) {
	if q.events == nil {
		return
	}
	event := interfaces.Event{
		Type:    interfaces.EventDeferredCompleted,
		Ticker:  ticker,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	if err := q.events.Publish(context.Background(), event); err != nil {
		q.logger.Debug().Err(err).Msg("Deferred event publish failed")
	}
}

func (q *Queue) recordDepthLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.SetDeferredDepth(len(q.buf) + len(q.overflow))
}

// dedupeKey normalizes a request the same way the analysis pipeline would,
// so a queued rerun and a synchronous request for the same run collide.
func dedupeKey(req models.AnalysisRequest) string {
	ticker := common.ParseTicker(req.Ticker)
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		mode = models.ModeFull
	}
	return fmt.Sprintf("%s|%s|%s", ticker.Symbol, req.Date, models.ResolveVariant(req.EffectiveModel(), mode.SkipsLLM()))
}
