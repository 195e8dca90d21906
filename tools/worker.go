package tools

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/graynk/stickerbot/queue"
)

// Worker drains an HonestJobQueue with a fixed number of goroutines.
// With a single goroutine it doubles as a mutex that keeps submission fairness.
type Worker struct {
	queue     *queue.HonestJobQueue // the queue itself. separate from the channel, since we can't sort stuff in channels
	messenger chan struct{}         // if there's something in the channel - there's something in the queue.
	busy      atomic.Int32
	wg        sync.WaitGroup
	mu        sync.RWMutex // guards closed against Submit racing Shutdown
	closed    bool
}

func NewWorker(workerCount, capacity int) *Worker {
	worker := &Worker{
		queue:     queue.NewHonestJobQueue(capacity),
		messenger: make(chan struct{}, capacity),
	}
	worker.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go worker.run()
	}
	return worker
}

func (w *Worker) run() {
	defer w.wg.Done()
	for range w.messenger {
		job := w.queue.Pop()
		if job == nil {
			continue
		}
		w.busy.Add(1)
		job.Run()
		w.busy.Add(-1)
	}
}

// Submit queues runnable for key. Once the worker is shut down it returns queue.ShutdownErr.
func (w *Worker) Submit(key string, runnable func()) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errors.WithStack(queue.ShutdownErr)
	}
	if err := w.queue.Push(key, runnable); err != nil {
		return err
	}
	w.messenger <- struct{}{} // let goroutines know that there's something in the queue
	return nil
}

// IsBusy reports whether a newly submitted job would have to wait.
func (w *Worker) IsBusy() bool {
	return w.busy.Load() > 0 || w.queue.Len() > 0
}

func (w *Worker) QueueStats() (int, int) {
	return w.queue.Stats()
}

func (w *Worker) ToggleMaintenance() bool {
	return w.queue.ToggleMaintenance()
}

// Shutdown stops accepting wakeups and waits for queued jobs to finish.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.messenger)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
