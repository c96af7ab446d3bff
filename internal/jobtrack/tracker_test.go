package jobtrack

import (
	"sync"
	"testing"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

func TestPutGetApply(t *testing.T) {
	tr := New()
	tr.Put(domain.ScanJob{ID: "job-1", Status: domain.ScanStatusPending, PagesTotal: 5})

	job, ok := tr.Get("job-1")
	if !ok || job.PagesTotal != 5 {
		t.Fatalf("Get = %+v, %v", job, ok)
	}

	if !tr.Apply("job-1", func(j *domain.ScanJob) { j.PagesCompleted = 2 }) {
		t.Fatal("Apply reported missing job")
	}
	job, _ = tr.Get("job-1")
	if job.PagesCompleted != 2 {
		t.Fatalf("PagesCompleted = %d, want 2", job.PagesCompleted)
	}

	if tr.Apply("nope", func(j *domain.ScanJob) {}) {
		t.Fatal("Apply must report unknown jobs")
	}
}

func TestGetReturnsACopy(t *testing.T) {
	tr := New()
	tr.Put(domain.ScanJob{ID: "job-1", Status: domain.ScanStatusScanning})

	job, _ := tr.Get("job-1")
	job.Status = domain.ScanStatusError

	stored, _ := tr.Get("job-1")
	if stored.Status != domain.ScanStatusScanning {
		t.Fatal("mutating a Get result must not touch tracked state")
	}
}

func TestRequestCancel(t *testing.T) {
	tr := New()
	tr.Put(domain.ScanJob{ID: "live", Status: domain.ScanStatusScanning})
	tr.Put(domain.ScanJob{ID: "done", Status: domain.ScanStatusComplete})

	if !tr.RequestCancel("live") {
		t.Fatal("cancel of a live job must succeed")
	}
	if !tr.Cancelled("live") {
		t.Fatal("flag not observable after RequestCancel")
	}
	if tr.RequestCancel("done") {
		t.Fatal("terminal jobs must not accept cancellation")
	}
	if tr.RequestCancel("missing") {
		t.Fatal("unknown jobs must not accept cancellation")
	}
}

func TestRemove(t *testing.T) {
	tr := New()
	tr.Put(domain.ScanJob{ID: "job-1"})
	tr.Remove("job-1")
	if _, ok := tr.Get("job-1"); ok {
		t.Fatal("job still present after Remove")
	}
	if tr.Cancelled("job-1") {
		t.Fatal("removed job reports cancelled")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := New()
	tr.Put(domain.ScanJob{ID: "job-1", Status: domain.ScanStatusScanning})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Apply("job-1", func(j *domain.ScanJob) { j.PagesCompleted++ })
		}()
		go func() {
			defer wg.Done()
			tr.Cancelled("job-1")
		}()
	}
	wg.Wait()

	job, _ := tr.Get("job-1")
	if job.PagesCompleted != 50 {
		t.Fatalf("PagesCompleted = %d, want 50", job.PagesCompleted)
	}
}
