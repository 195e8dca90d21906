package queue

// jobHeap implements heap.Interface over queued jobs.
// Smaller priority wins, and jobs of equal priority come out in the order they (re-)entered.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old) - 1
	job := old[n]
	old[n] = nil
	*h = old[:n]
	return job
}
