package usecase

import (
	"context"
	"sync"

	"pulse-backend/internal/ingest/domain"

	log "github.com/sirupsen/logrus"
)

type syncJob struct {
	pair    domain.Pair
	trigger domain.Trigger
}

// Dispatcher runs background syncs on a fixed pool of workers. A pair is held
// in the pending set from Enqueue until its sync returns, so a pair is never
// queued twice.
type Dispatcher struct {
	worker      SyncWorker
	jobQueue    chan syncJob
	workerCount int
	workerWg    sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(worker SyncWorker, workerCount, queueSize int) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		worker:      worker,
		jobQueue:    make(chan syncJob, queueSize),
		workerCount: workerCount,
		pending:     make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return
	}
	for i := 0; i < d.workerCount; i++ {
		d.workerWg.Add(1)
		go d.run(i)
	}
	d.started = true
	log.Infof("[Dispatcher] Started %d sync workers", d.workerCount)
}

// Stop refuses new work, cancels in-flight syncs and waits for the workers.
// Jobs still queued are dropped; their pairs are picked up again by the next
// scheduler pass.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.cancel()
	d.workerWg.Wait()
	log.Info("[Dispatcher] All sync workers stopped")
}

func (d *Dispatcher) Enqueue(pair domain.Pair, trigger domain.Trigger) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	key := pair.Key()
	if _, busy := d.pending[key]; busy {
		log.WithFields(log.Fields{"pair": key, "trigger": trigger}).Debug("[Dispatcher] Pair already pending, dropping")
		return false
	}

	select {
	case d.jobQueue <- syncJob{pair: pair, trigger: trigger}:
		d.pending[key] = struct{}{}
		return true
	default:
		log.WithFields(log.Fields{"pair": key, "trigger": trigger}).Warn("[Dispatcher] Queue full, dropping sync")
		return false
	}
}

// Pending returns the number of pairs queued or running.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) run(id int) {
	defer d.workerWg.Done()

	for job := range d.jobQueue {
		if d.ctx.Err() == nil {
			d.worker.Sync(d.ctx, job.pair, job.trigger)
		}
		d.mu.Lock()
		delete(d.pending, job.pair.Key())
		d.mu.Unlock()
	}

	log.Debugf("[Dispatcher] Worker %d stopped", id)
}
