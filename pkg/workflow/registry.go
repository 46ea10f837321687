package workflow

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const DefaultRetention = time.Hour

// Registry indexes live executions by id. Running executions never expire;
// finished ones are kept for the retention window and then evicted.
type Registry struct {
	cache     *gocache.Cache
	retention time.Duration
}

func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}

	cleanup := retention / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}

	return &Registry{
		cache:     gocache.New(gocache.NoExpiration, cleanup),
		retention: retention,
	}
}

// Register stores the execution, replacing any previous one with the same id.
func (r *Registry) Register(execution *Execution) {
	r.cache.Set(execution.ID().String(), execution, gocache.NoExpiration)
}

func (r *Registry) Get(id uuid.UUID) (*Execution, bool) {
	value, found := r.cache.Get(id.String())
	if !found {
		return nil, false
	}

	execution, ok := value.(*Execution)

	return execution, ok
}

// Retire starts the retention countdown for a finished execution.
func (r *Registry) Retire(execution *Execution) {
	r.cache.Set(execution.ID().String(), execution, r.retention)
}

// Purge removes the execution immediately.
func (r *Registry) Purge(id uuid.UUID) {
	r.cache.Delete(id.String())
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
