package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/maple/engine/containers"
	"github.com/spaghettifunk/maple/engine/core"
)

/** @brief Describes a type of job. Only used for diagnostics. */
type JobType int

const (
	JOB_TYPE_GENERAL JobType = iota
	/** @brief Generates or decodes resource data on the CPU. */
	JOB_TYPE_RESOURCE_LOAD
)

func (t JobType) String() string {
	switch t {
	case JOB_TYPE_GENERAL:
		return "general"
	case JOB_TYPE_RESOURCE_LOAD:
		return "resource load"
	}
	return "unknown"
}

/** Runs on a worker. The returned value is handed to OnComplete. */
type JobStart func(params interface{}) (interface{}, error)

/** Runs on the thread calling JobSystem.Update. */
type JobOnComplete func(result interface{})

type JobOnFailure func(err error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	Name        string
	JobType     JobType
	InputParams interface{}
	// Required.
	OnStart    JobStart
	OnComplete JobOnComplete
	OnFailure  JobOnFailure
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

// The max number of job results that can be stored at once.
const MAX_JOB_RESULTS int = 512

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	submitMu sync.RWMutex
	closed   bool

	resultsMu sync.Mutex
	notFull   *sync.Cond
	results   *containers.RingQueue[jobResult]
	closing   bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, core.ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, core.ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
		results:    containers.NewRingQueue[jobResult](MAX_JOB_RESULTS),
	}
	js.notFull = sync.NewCond(&js.resultsMu)
	js.start()

	core.LogDebug("job system started with %d workers", numWorkers)
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	result, err := job.OnStart(job.InputParams)
	if err != nil {
		core.LogError("job '%s' (%s) failed: %s", job.Name, job.JobType, err)
	}
	if job.OnComplete == nil && job.OnFailure == nil {
		return
	}
	js.storeResult(jobResult{task: job, result: result, err: err})
}

// storeResult blocks while the result queue is full, unless the system is shutting down.
func (js *JobSystem) storeResult(r jobResult) {
	js.resultsMu.Lock()
	defer js.resultsMu.Unlock()
	for js.results.IsFull() {
		if js.closing {
			core.LogWarn("job '%s' finished during shutdown, dropping its callback", r.task.Name)
			return
		}
		js.notFull.Wait()
	}
	if err := js.results.Enqueue(r); err != nil {
		core.LogError("could not store the result of job '%s': %s", r.task.Name, err)
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run, callbacks that do
 * not fit in the result queue anymore are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.resultsMu.Lock()
	js.closing = true
	js.notFull.Broadcast()
	js.resultsMu.Unlock()

	js.submitMu.Lock()
	if js.closed {
		js.submitMu.Unlock()
		return core.ErrJobSystemClosed
	}
	js.closed = true
	close(js.jobQueue)
	js.submitMu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Updates the job system. Should happen once an update cycle.
 * Runs the completion callbacks of every finished job on the calling goroutine.
 */
func (js *JobSystem) Update() {
	for {
		js.resultsMu.Lock()
		r, err := js.results.Dequeue()
		js.notFull.Signal()
		js.resultsMu.Unlock()
		if err != nil {
			return
		}
		if r.err != nil {
			if r.task.OnFailure != nil {
				r.task.OnFailure(r.err)
			}
			continue
		}
		if r.task.OnComplete != nil {
			r.task.OnComplete(r.result)
		}
	}
}

/**
 * @brief Submits the provided job to be queued for execution.
 * Blocks while the job queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.OnStart == nil {
		return fmt.Errorf("job '%s' has no entry point", jt.Name)
	}
	js.submitMu.RLock()
	defer js.submitMu.RUnlock()
	if js.closed {
		return core.ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
