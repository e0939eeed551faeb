package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/turbo/internal/jobs"
)

// MemoryRepository is a jobs.InstanceRepository kept in memory. List
// returns records in first-save order.
type MemoryRepository struct {
	mu      sync.Mutex
	order   []string
	records map[string]jobs.Record
}

var _ jobs.InstanceRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]jobs.Record)}
}

func (r *MemoryRepository) Save(_ context.Context, rec jobs.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.InstanceResourceID]; !ok {
		r.order = append(r.order, rec.InstanceResourceID)
	}
	r.records[rec.InstanceResourceID] = rec
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (jobs.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return jobs.Record{}, fmt.Errorf("%w: %s", jobs.ErrInstanceNotFound, id)
	}
	return rec, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]jobs.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]jobs.Record, 0, len(r.records))
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: %s", jobs.ErrInstanceNotFound, id)
	}
	delete(r.records, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
