// Package worker provides the single goroutine task queues cryptors run
// their per frame work on. One worker per direction keeps frame order
// stable without locking the crypto path itself.
package worker

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"

	"github.com/cloudwebrtc/go-frame-cryptor/pkg/utils"
)

// Worker runs posted tasks one at a time, in posting order, on its own
// goroutine. After Stop, pending tasks are dropped and further posts are
// rejected.
type Worker struct {
	name    string
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   deque.Deque
	stopped *abool.AtomicBool
	done    chan struct{}
	logger  log.Logger
}

// New starts a worker goroutine. The name only shows up in logs.
func New(name string) *Worker {
	w := &Worker{
		name:    name,
		stopped: abool.New(),
		done:    make(chan struct{}),
		logger:  utils.NewLogrusLogger(utils.DefaultLogLevel, "Worker", nil),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Post queues task behind everything already waiting. It reports false when
// the worker is stopped or task is nil, and never blocks on the task itself.
func (w *Worker) Post(task func()) bool {
	if task == nil || w.stopped.IsSet() {
		return false
	}
	w.mu.Lock()
	w.tasks.PushBack(task)
	w.cond.Signal()
	w.mu.Unlock()
	return true
}

// Stop shuts the worker down and waits for the goroutine to exit. The task
// in flight finishes, queued tasks are dropped. Safe to call repeatedly.
func (w *Worker) Stop() {
	if !w.stopped.SetToIf(false, true) {
		<-w.done
		return
	}
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *Worker) run() {
	for {
		w.mu.Lock()
		for w.tasks.Len() == 0 && w.stopped.IsNotSet() {
			w.cond.Wait()
		}
		if w.stopped.IsSet() {
			dropped := w.tasks.Len()
			w.tasks.Clear()
			w.mu.Unlock()
			if dropped > 0 {
				w.logger.Debugf("%v: dropping %d queued tasks on stop", w.name, dropped)
			}
			close(w.done)
			return
		}
		task := w.tasks.PopFront().(func())
		w.mu.Unlock()

		task()
	}
}
