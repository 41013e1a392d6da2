package feed

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/decred/slog"
)

// Runner feeds changes to a Dispatcher on a pool of workers. Changes are
// sharded by table address, so each table's changes dispatch in the order
// they were written while tables proceed independently.
type Runner struct {
	log        slog.Logger
	dispatcher *Dispatcher
	queues     []chan Change
	stopChan   chan struct{}
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

// NewRunner creates a Runner with workerCount shards, each buffering up to
// queueSize changes.
func NewRunner(log slog.Logger, d *Dispatcher, queueSize, workerCount int) *Runner {
	if workerCount < 1 {
		workerCount = 1
	}
	r := &Runner{
		log:        log,
		dispatcher: d,
		queues:     make([]chan Change, workerCount),
		stopChan:   make(chan struct{}),
	}
	if r.log == nil {
		r.log = slog.Disabled
	}
	for i := range r.queues {
		r.queues[i] = make(chan Change, queueSize)
	}
	return r
}

// Start begins dispatching queued changes.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.log.Infof("Starting change dispatch with %d workers", len(r.queues))
	for i := range r.queues {
		r.wg.Add(1)
		go r.run(i)
	}
}

// Stop drains nothing; queued changes not yet dispatched are dropped.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
	r.started = false
	r.log.Infof("Change dispatch stopped")
}

// Offer enqueues a change onto its table's shard. It never blocks a writer;
// a full shard drops the change with an error log.
func (r *Runner) Offer(ch Change) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		r.log.Warnf("dispatch not started, dropping change for table %s", ch.TableAddr)
		return
	}
	select {
	case r.shard(ch.TableAddr) <- ch:
	default:
		r.log.Errorf("change queue full, dropping change for table %s", ch.TableAddr)
	}
}

func (r *Runner) shard(tableAddr string) chan Change {
	h := fnv.New32a()
	h.Write([]byte(tableAddr))
	return r.queues[int(h.Sum32())%len(r.queues)]
}

func (r *Runner) run(i int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopChan:
			return
		case ch := <-r.queues[i]:
			if err := r.dispatcher.Process(context.Background(), ch); err != nil {
				r.log.Errorf("dispatch failed for table %s hand %d: %v",
					ch.TableAddr, ch.New.HandID, err)
			}
		}
	}
}
