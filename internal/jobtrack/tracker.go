// Package jobtrack holds live scan-job state and cooperative cancellation
// flags. The default implementation is an in-process map guarded by a mutex;
// the ports.JobTracker interface leaves room for an external store when jobs
// must survive a process restart.
package jobtrack

import (
	"sync"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// Memory is the in-process JobTracker. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ScanJob
}

func New() *Memory {
	return &Memory{jobs: make(map[string]*domain.ScanJob)}
}

func (m *Memory) Put(job domain.ScanJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *Memory) Get(jobID string) (domain.ScanJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ScanJob{}, false
	}
	return *job, true
}

func (m *Memory) Apply(jobID string, fn func(*domain.ScanJob)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// RequestCancel flips the cooperative cancellation flag. Terminal jobs are
// left alone: their pipelines have already exited.
func (m *Memory) RequestCancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.CancelRequested = true
	return true
}

func (m *Memory) Cancelled(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	return ok && job.CancelRequested
}

func (m *Memory) Remove(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
}
