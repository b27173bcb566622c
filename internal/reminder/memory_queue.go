package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue очередь напоминаний в памяти процесса
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]Job)}
}

func (q *MemoryQueue) List(_ context.Context, studentID string) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []Job
	for _, job := range q.jobs {
		if job.StudentID == studentID {
			result = append(result, job)
		}
	}
	sortJobs(result)
	return result, nil
}

func (q *MemoryQueue) Schedule(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Key] = job
	return nil
}

func (q *MemoryQueue) Cancel(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, job.Key)
	return nil
}

// PopDue забирает задачи с FireAt <= now в порядке срабатывания
func (q *MemoryQueue) PopDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Job
	for _, job := range q.jobs {
		if !job.FireAt.After(now) {
			due = append(due, job)
		}
	}
	sortJobs(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, job := range due {
		delete(q.jobs, job.Key)
	}
	return due, nil
}

// Len количество задач в очереди
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].FireAt.Equal(jobs[j].FireAt) {
			return jobs[i].FireAt.Before(jobs[j].FireAt)
		}
		return jobs[i].Key < jobs[j].Key
	})
}
