package service

import (
	"sync"

	"gowa-blast/internal/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultJobHistory = 256

// JobStore keeps the results of recent dispatch jobs so callers can poll
// them. The oldest entries fall out once the history is full.
type JobStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *model.JobResult]
}

func NewJobStore(size int) *JobStore {
	if size <= 0 {
		size = defaultJobHistory
	}
	cache, err := lru.New[string, *model.JobResult](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &JobStore{cache: cache}
}

// Put stores a copy of r under its job id.
func (s *JobStore) Put(r model.JobResult) {
	c := r.Clone()
	s.mu.Lock()
	s.cache.Add(r.JobID, &c)
	s.mu.Unlock()
}

// Get returns a copy of the stored result.
func (s *JobStore) Get(jobID string) (model.JobResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache.Get(jobID)
	if !ok {
		return model.JobResult{}, false
	}
	return r.Clone(), true
}

func (s *JobStore) Len() int {
	return s.cache.Len()
}
