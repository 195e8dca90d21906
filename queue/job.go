package queue

// Job is a unit of transcoder work queued on behalf of a conversation.
type Job struct {
	runnable func()
	key      string // conversation the job was submitted for, drives its priority
	priority int    // lesser numbers go first. Calculated by the HonestJobQueue
	seq      uint64 // keeps FIFO order among equal priorities, bumped when the job is promoted
}

func newJob(key string, priority int, seq uint64, runnable func()) *Job {
	return &Job{
		runnable: runnable,
		key:      key,
		priority: priority,
		seq:      seq,
	}
}

func (j *Job) Run() {
	j.runnable()
}
