// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package async

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWorkers is the number of goroutines each Pool runs, matching the
// fixed-size worker count spec.md describes for the async substrate.
const DefaultWorkers = 4

// jobQueueDepth bounds the FIFO channel. A drive with this many queued
// commands is already failing callers faster than it can drain, so back
// pressure here is the correct behavior, not a limitation to work around.
const jobQueueDepth = 256

// Pool runs IDM commands for a single drive across a fixed set of worker
// goroutines, storing each outcome in a map keyed by JobID until the
// submitter retrieves it. Grounded on the mutex-guarded-map idiom used for
// the pack's minio/dsync lock server (one mutex protecting a small map),
// adapted here to one pool per drive instead of one map for a whole
// server.
type Pool struct {
	jobs chan Job

	mu      sync.Mutex
	results map[JobID]Outcome

	wg   sync.WaitGroup
	done chan struct{}
}

// NewPool starts a pool with DefaultWorkers goroutines.
func NewPool() *Pool {
	return NewPoolSize(DefaultWorkers)
}

// NewPoolSize starts a pool with the given worker count.
func NewPoolSize(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := &Pool{
		jobs:    make(chan Job, jobQueueDepth),
		results: make(map[JobID]Outcome),
		done:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		outcome := p.runJob(job)

		p.mu.Lock()
		p.results[job.ID] = outcome
		p.mu.Unlock()
	}
}

// runJob mirrors the synchronous per-drive transport contract exactly:
// open the device, issue one pass-through command, close the device.
func (p *Pool) runJob(job Job) Outcome {
	if err := job.Device.Open(); err != nil {
		return Outcome{Err: err}
	}
	defer job.Device.Close()

	result, err := job.Device.Exec(job.Cmd)
	return Outcome{Result: result, Err: err}
}

// Submit enqueues job and returns the JobID the caller later polls with
// FindResult.
func (p *Pool) Submit(job Job) JobID {
	id := newJobID()
	job.ID = id
	p.jobs <- job
	return id
}

// FindResult polls for id's outcome, sleeping interval between attempts,
// up to retryMax attempts. It returns an error if the job never completes
// in that window; the caller decides whether to keep polling with a fresh
// call.
func (p *Pool) FindResult(id JobID, retryMax int, interval time.Duration) (Outcome, error) {
	for attempt := 0; attempt < retryMax; attempt++ {
		p.mu.Lock()
		outcome, ok := p.results[id]
		if ok {
			delete(p.results, id)
		}
		p.mu.Unlock()

		if ok {
			return outcome, nil
		}

		time.Sleep(interval)
	}

	return Outcome{}, fmt.Errorf("async: job %d did not complete within %d attempts", id, retryMax)
}

// Destroy stops accepting new jobs and waits for in-flight workers to
// drain before returning.
func (p *Pool) Destroy() {
	close(p.jobs)
	p.wg.Wait()
}
