package background

import (
	"fmt"
	"lockservd/pkg/logger"
	"sync"
)

// QueueOperationFunc :
// Defines the function invoked for each item dequeued by a
// `QueueProcess`. It receives the item enqueued by a producer and
// returns any error encountered while handling it; the error is
// only logged, the queue keeps draining regardless.
type QueueOperationFunc func(item interface{}) error

// ErrQueueFull : Indicates that an item could not be enqueued
// because the internal buffer of the queue process is saturated.
var ErrQueueFull = fmt.Errorf("Unable to enqueue item, queue is full")

// ErrQueueAlreadyRunning : Indicates that this queue process is
// already running and cannot be started again.
var ErrQueueAlreadyRunning = fmt.Errorf("Unable to start already running queue process")

// ErrQueueInvalidOperation : Indicates that the operation
// associated to this queue process is not valid.
var ErrQueueInvalidOperation = fmt.Errorf("Invalid operation to start queue process")

// QueueProcess :
// Models a long-lived background worker consuming a bounded FIFO of
// opaque items, one at a time, blocking on an empty queue rather
// than polling at an interval like `Process` does. This is the shape
// needed by the revoke and retry dispatchers: producers (the lock
// table handlers) hand items to `Enqueue` while holding the table
// lock and must never be made to wait, while the consumer side can
// freely block on the queue and on the outbound call it makes for
// each item.
//
// The `items` channel is the bounded FIFO itself; its capacity is
// fixed at construction time.
//
// The `operation` callback is invoked once per dequeued item.
//
// The `log`/`module` fields behave as in `Process`: they identify
// the worker in log output.
//
// The `lock`/`running`/`termination`/`waiter` fields mirror
// `Process` and provide the same start/stop semantics.
type QueueProcess struct {
	items     chan interface{}
	operation QueueOperationFunc
	log       logger.Logger
	module    string

	lock        sync.Mutex
	running     bool
	termination chan bool
	waiter      sync.WaitGroup
}

// NewQueueProcess :
// Builds a queue process with the given buffer capacity and logger.
// The operation must be attached through `WithOperation` before
// `Start` is called.
//
// The `capacity` defines how many items can be buffered before
// `Enqueue` starts rejecting new ones.
//
// The `log` defines the logger to use to notify info and errors.
//
// Returns the built-in object.
func NewQueueProcess(capacity int, log logger.Logger) *QueueProcess {
	return &QueueProcess{
		items:       make(chan interface{}, capacity),
		log:         log,
		lock:        sync.Mutex{},
		running:     false,
		termination: make(chan bool, 1),
	}
}

// WithModule :
// Assigns a new string as the module name for this queue process.
//
// Returns this queue process to allow chain calling.
func (q *QueueProcess) WithModule(module string) *QueueProcess {
	func() {
		q.lock.Lock()
		defer q.lock.Unlock()

		q.module = module
	}()

	return q
}

// WithOperation :
// Defines the function invoked once per dequeued item.
//
// Returns this queue process to allow chain calling.
func (q *QueueProcess) WithOperation(operation QueueOperationFunc) *QueueProcess {
	func() {
		q.lock.Lock()
		defer q.lock.Unlock()

		q.operation = operation
	}()

	return q
}

// Enqueue :
// Attempts to register `item` for future processing by the worker
// goroutine. Never blocks: if the internal buffer is saturated the
// item is dropped and `ErrQueueFull` is returned, matching the
// requirement that producers enqueueing while holding the table
// lock never suspend.
func (q *QueueProcess) Enqueue(item interface{}) error {
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start :
// Launches the background goroutine draining the queue. Returns an
// error if the process is already running or has no operation
// attached.
func (q *QueueProcess) Start() error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.running {
		return ErrQueueAlreadyRunning
	}
	if q.operation == nil {
		return ErrQueueInvalidOperation
	}

	q.running = true
	q.waiter.Add(1)

	go q.activeLoop()

	return nil
}

// Stop :
// Requests termination of the draining goroutine and waits for it
// to actually return. Items still buffered when `Stop` is called are
// discarded.
func (q *QueueProcess) Stop() {
	q.lock.Lock()
	if !q.running {
		q.lock.Unlock()
		return
	}

	q.termination <- true
	q.lock.Unlock()

	// The lock is released before waiting: the worker needs it to
	// flag itself as stopped on its way out.
	q.waiter.Wait()
}

// activeLoop :
// Main processing loop: blocks alternately on the termination
// channel and on the item queue, invoking the operation for each
// dequeued item. A panic raised by the operation is recovered and
// logged rather than crashing the process, matching `Process`'s own
// activeLoop; as with `Process`, the recover is scoped to the whole
// loop, so a panicking item still ends this particular worker
// goroutine (`running` flips back to false and `Stop` returns
// immediately) rather than being skipped in place.
func (q *QueueProcess) activeLoop() {
	defer func() {
		err := recover()
		if err != nil {
			func() {
				q.lock.Lock()
				defer q.lock.Unlock()

				q.log.Trace(logger.Critical, q.module, fmt.Sprintf("Recovered from error in queue process (err: %v)", err))
			}()
		}

		q.lock.Lock()
		q.running = false
		q.lock.Unlock()

		q.waiter.Done()
	}()

	for {
		select {
		case <-q.termination:
			return
		case item := <-q.items:
			err := q.operation(item)
			if err != nil {
				func() {
					q.lock.Lock()
					defer q.lock.Unlock()

					q.log.Trace(logger.Error, q.module, fmt.Sprintf("Caught error while processing queue item (err: %v)", err))
				}()
			}
		}
	}
}
