package reindex

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"github.com/hrygo/recruitsense/store"
)

const (
	// DefaultDebounce is how long a record stays pending after its last event.
	DefaultDebounce = time.Second
	// DefaultWorkers bounds concurrent reindex passes.
	DefaultWorkers = 3

	passTimeout = 2 * time.Minute
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("orchestrator stopped")

// Reindexer runs a single reindex pass for a merged event.
type Reindexer interface {
	ReindexEvent(ctx context.Context, e *Event) error
}

// Metrics receives orchestrator observations.
type Metrics interface {
	RecordReindexPass(entity, trigger string, latency time.Duration, success bool)
	RecordEventCollapsed(entity string)
	SetPendingRecords(count int)
}

type status int

const (
	statusPending status = iota
	statusRunning
)

// recordState is the per-record state machine. A record without state is
// idle.
type recordState struct {
	status   status
	timer    *time.Timer
	deadline time.Time
	event    *Event // merged event of the pending pass
	followUp *Event // events that arrived while running
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMetrics records passes, collapsed events and pending records.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator debounces reindex events per record and runs at most one
// pass per record at a time on a bounded worker pool.
type Orchestrator struct {
	reindexer Reindexer
	debounce  time.Duration
	workers   int
	metrics   Metrics
	logger    *slog.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	records map[recordKey]*recordState
	stopped bool
}

// NewOrchestrator creates an Orchestrator with a running worker pool.
func NewOrchestrator(reindexer Reindexer, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		reindexer: reindexer,
		debounce:  DefaultDebounce,
		workers:   DefaultWorkers,
		logger:    slog.Default(),
		records:   map[recordKey]*recordState{},
	}
	for _, opt := range opts {
		opt(o)
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create worker pool")
	}
	o.pool = pool
	o.ctx, o.cancel = context.WithCancel(context.Background())

	o.logger.Info("reindex orchestrator started", "workers", o.workers, "debounce", o.debounce)
	return o, nil
}

// Submit feeds an event into the record's state machine. An idle record
// becomes pending; a pending record has its timer reset and the event
// merged; a running record gets the event queued for one follow-up pass.
func (o *Orchestrator) Submit(e *Event) error {
	if !e.Entity.Valid() || e.RecordID == "" {
		return errors.Errorf("invalid reindex event for %q %q", e.Entity, e.RecordID)
	}
	if e.Trigger == "" {
		e.Trigger = TriggerManual
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}

	key := e.key()
	st, ok := o.records[key]
	switch {
	case !ok:
		st = &recordState{status: statusPending, event: e.clone()}
		st.deadline = time.Now().Add(o.debounce)
		st.timer = time.AfterFunc(o.debounce, func() { o.fire(key) })
		o.records[key] = st
	case st.status == statusPending:
		st.event.merge(e)
		st.deadline = time.Now().Add(o.debounce)
		st.timer.Reset(o.debounce)
		o.collapsed(e)
	default:
		if st.followUp == nil {
			st.followUp = e.clone()
		} else {
			st.followUp.merge(e)
			o.collapsed(e)
		}
	}
	o.setPending()
	return nil
}

// Listen converts notifications into events until ctx is done or the
// channel is closed.
func (o *Orchestrator) Listen(ctx context.Context, notifications <-chan *store.ChangeNotification) error {
	o.logger.InfoContext(ctx, "reindex listener started")
	defer o.logger.Info("reindex listener stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			e := EventFromNotification(n)
			if err := o.Submit(e); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				o.logger.WarnContext(ctx, "reindex event dropped",
					"entity", n.Entity,
					"record_id", n.ID,
					"error", err)
				continue
			}
			o.logger.DebugContext(ctx, "reindex event received",
				"entity", e.Entity,
				"record_id", e.RecordID,
				"trigger", e.Trigger,
				"changed_fields", e.ChangedFields)
		}
	}
}

// Pending returns the number of records that are pending or running.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

// Stop rejects new events, runs pending records and queued follow-ups right
// away and waits for every pass to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	var flush []recordKey
	for key, st := range o.records {
		if st.status == statusPending {
			st.timer.Stop()
			st.deadline = time.Time{}
			flush = append(flush, key)
		}
	}
	o.mu.Unlock()

	for _, key := range flush {
		o.fire(key)
	}
	o.wg.Wait()
	o.pool.Release()
	o.cancel()
	o.logger.Info("reindex orchestrator stopped", "flushed", len(flush))
}

// fire moves a pending record to running once its debounce deadline has
// passed. Early calls come from a timer that was reset after it expired.
func (o *Orchestrator) fire(key recordKey) {
	o.mu.Lock()
	st, ok := o.records[key]
	if !ok || st.status != statusPending || time.Now().Before(st.deadline) {
		o.mu.Unlock()
		return
	}
	st.status = statusRunning
	event := st.event
	st.event = nil
	o.wg.Add(1)
	o.mu.Unlock()

	err := o.pool.Submit(func() {
		defer o.wg.Done()
		o.run(key, event)
	})
	if err != nil {
		o.wg.Done()
		o.logger.Error("reindex pass not scheduled",
			"entity", event.Entity,
			"record_id", event.RecordID,
			"error", err)
		for o.finish(key) != nil {
		}
	}
}

// run executes e and, while stopping, any follow-up pass inline.
func (o *Orchestrator) run(key recordKey, e *Event) {
	for e != nil {
		o.pass(e)
		e = o.finish(key)
	}
}

func (o *Orchestrator) pass(e *Event) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(o.ctx, passTimeout)
	defer cancel()

	err := o.reindexer.ReindexEvent(ctx, e)
	latency := time.Since(start)
	if o.metrics != nil {
		o.metrics.RecordReindexPass(string(e.Entity), string(e.Trigger), latency, err == nil)
	}
	if err != nil {
		o.logger.Error("reindex pass failed",
			"entity", e.Entity,
			"record_id", e.RecordID,
			"trigger", e.Trigger,
			"error", err)
	} else {
		o.logger.Debug("reindex pass completed",
			"entity", e.Entity,
			"record_id", e.RecordID,
			"trigger", e.Trigger,
			"changed_fields", e.ChangedFields,
			"latency_ms", latency.Milliseconds())
	}
}

// finish returns the record to idle, or re-arms it for the follow-up pass.
// While stopping, the follow-up is returned to be run without debounce.
func (o *Orchestrator) finish(key recordKey) *Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.records[key]
	if !ok {
		return nil
	}
	defer o.setPending()
	switch {
	case st.followUp == nil:
		delete(o.records, key)
		return nil
	case o.stopped:
		next := st.followUp
		st.followUp = nil
		return next
	default:
		st.status = statusPending
		st.event, st.followUp = st.followUp, nil
		st.deadline = time.Now().Add(o.debounce)
		st.timer.Reset(o.debounce)
		return nil
	}
}

func (o *Orchestrator) collapsed(e *Event) {
	if o.metrics != nil {
		o.metrics.RecordEventCollapsed(string(e.Entity))
	}
}

func (o *Orchestrator) setPending() {
	if o.metrics != nil {
		o.metrics.SetPendingRecords(len(o.records))
	}
}
