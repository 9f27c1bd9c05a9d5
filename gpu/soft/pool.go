package soft

import (
	"sync"

	"github.com/pthm-cable/swarm/gpu"
)

// workChunk is a range of work groups for one worker.
type workChunk struct {
	firstGroup, lastGroup int
	job                   *dispatchJob
}

// dispatchJob is one dispatch resolved to host memory.
type dispatchJob struct {
	kernel gpu.HostKernel
	args   gpu.KernelArgs
	batch  int
	count  int
}

// pool is a set of persistent worker goroutines. Only the queue goroutine
// submits work, so run is never called concurrently.
type pool struct {
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newPool(numWorkers int) *pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &pool{numWorkers: numWorkers}
}

// start launches the worker goroutines.
func (p *pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *pool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			runGroups(chunk)
			p.doneChan <- struct{}{}
		}
	}
}

// run executes every work group of job and returns when all are done.
func (p *pool) run(job *dispatchJob, groups int) {
	if groups <= 0 || job.count == 0 {
		return
	}

	// Small dispatches are cheaper inline than a round trip through the pool.
	if p.numWorkers == 1 || job.count < job.batch*2 || groups < 2 {
		runGroups(workChunk{firstGroup: 0, lastGroup: groups, job: job})
		return
	}

	chunks := p.numWorkers
	if groups < chunks {
		chunks = groups
	}
	per := (groups + chunks - 1) / chunks

	sent := 0
	for first := 0; first < groups; first += per {
		last := first + per
		if last > groups {
			last = groups
		}
		p.workChan <- workChunk{firstGroup: first, lastGroup: last, job: job}
		sent++
	}
	for i := 0; i < sent; i++ {
		<-p.doneChan
	}
}

func runGroups(chunk workChunk) {
	job := chunk.job
	for g := chunk.firstGroup; g < chunk.lastGroup; g++ {
		start, end := gpu.GroupRange(g, job.batch, job.count)
		if start >= end {
			return
		}
		job.kernel(start, end, &job.args)
	}
}
