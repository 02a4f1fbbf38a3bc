package worker

import (
	"errors"
	"sync"

	"github.com/kianmehr/campaign-gateway/pkg/logger"
)

// Job is one unit of work executed by the pool. Campaign runs are
// long-lived jobs: a worker is occupied for the whole run.
type Job = func()

// WorkerManager is a job manager based on goroutines. Define the number of
// internal workers and start publishing jobs with Enqueue(). Jobs are
// distributed among the pool; workers never exit until Exit() is called.
type WorkerManager struct {
	bufferSize     int
	jobChannel     chan Job
	numberOfWorker int
	quit           chan struct{}
	closeOnce      sync.Once
	waiter         *sync.WaitGroup
}

func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan Job, bufferSize),
		quit:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

// Enqueue publishes a job onto the channel. Blocks when the buffer is full.
func (w *WorkerManager) Enqueue(job Job) {
	w.jobChannel <- job
}

// TryEnqueue publishes a job without blocking; reports whether it was accepted.
func (w *WorkerManager) TryEnqueue(job Job) bool {
	select {
	case w.jobChannel <- job:
		return true
	default:
		return false
	}
}

// Start starts off as many workers as defined by numberOfWorker and blocks
// until Exit() is called.
func (w *WorkerManager) Start() error {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					if job != nil {
						job()
					}
				case <-w.quit:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return errors.New("workers terminated")
}

// Exit stops all workers. Jobs already running finish on their own;
// buffered jobs are dropped.
func (w *WorkerManager) Exit() {
	logger.Info("Exit() is called and worker manager is going to be shutdown")
	w.closeOnce.Do(func() {
		close(w.quit)
	})
}
