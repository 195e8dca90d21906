package queue

import (
	"container/heap"
	"sync"

	"github.com/pkg/errors"
)

var FullErr = errors.New("There are too many stickers queued already, try again later")
var MaintenanceErr = errors.New("The converter is on temporary maintenance, try again later")
var ShutdownErr = errors.New("The converter is shutting down, try again later")
var TooOftenErr = errors.New("You're converting stickers too often, wait until the previous ones are done")

const (
	maxQueued        = 2000
	maxJobsPerSource = 3
)

// HonestJobQueue It ain't much, but it's an honest job.jpg
// Wraps jobHeap to make it thread-safe. Manages priorities, so a single busy
// conversation can't starve the others while they all wait for the same transcoder.
type HonestJobQueue struct {
	mu          *sync.RWMutex
	queue       jobHeap
	seq         uint64
	keys        map[string]int // Tracks the amount of jobs per-conversation currently in the queue. Used to calculate priority
	maintenance bool
}

func NewHonestJobQueue(initialCapacity int) *HonestJobQueue {
	return &HonestJobQueue{
		mu:    &sync.RWMutex{},
		queue: make(jobHeap, 0, initialCapacity),
		keys:  make(map[string]int),
	}
}

func (hjq *HonestJobQueue) updatePriorities(key string) {
	for i, job := range hjq.queue {
		if job.key != key {
			continue
		}
		job.priority--
		// very active conversations must not get stuck forever with lower priority, but they DO "re-enter" the queue
		job.seq = hjq.nextSeq()
		// It's fine to do Fix here, the job will always get moved to the _left_, we won't see the same job twice
		heap.Fix(&hjq.queue, i)
	}
}

func (hjq *HonestJobQueue) nextSeq() uint64 {
	hjq.seq++
	return hjq.seq
}

func (hjq *HonestJobQueue) Len() int {
	hjq.mu.RLock()
	defer hjq.mu.RUnlock()

	return len(hjq.queue)
}

func (hjq *HonestJobQueue) Stats() (int, int) {
	hjq.mu.RLock()
	defer hjq.mu.RUnlock()

	return len(hjq.queue), len(hjq.keys)
}

// Pop returns the next job, or nil if the queue is empty.
func (hjq *HonestJobQueue) Pop() *Job {
	hjq.mu.Lock()
	defer hjq.mu.Unlock()

	return hjq.pop()
}

func (hjq *HonestJobQueue) pop() *Job {
	if len(hjq.queue) == 0 {
		return nil
	}
	job := heap.Pop(&hjq.queue).(*Job)

	hjq.keys[job.key]--
	if hjq.keys[job.key] <= 0 {
		delete(hjq.keys, job.key)
	}

	hjq.updatePriorities(job.key)

	return job
}

func (hjq *HonestJobQueue) ToggleMaintenance() bool {
	hjq.mu.Lock()
	defer hjq.mu.Unlock()

	hjq.maintenance = !hjq.maintenance

	return hjq.maintenance
}

func (hjq *HonestJobQueue) Push(key string, runnable func()) error {
	hjq.mu.Lock()
	defer hjq.mu.Unlock()

	if hjq.maintenance {
		return MaintenanceErr
	}

	if hjq.queue.Len() > maxQueued {
		return FullErr
	}

	priority := hjq.keys[key]

	if priority >= maxJobsPerSource {
		return TooOftenErr
	}

	hjq.keys[key] = priority + 1

	heap.Push(&hjq.queue, newJob(key, priority, hjq.nextSeq(), runnable))

	return nil
}
