package execution

import (
	"sync"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// defaultCacheCapacity bounds the result cache; oldest entries fall off.
const defaultCacheCapacity = 1000

type cacheEntry struct {
	workflowID string
	result     workflow.ExecutionResult
}

// Cache holds terminal execution results by execution id so status queries
// outlive the dispatch call. Results are write-once: a cancellation marker
// sticks even if a late platform response reports completion.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*cacheEntry
	order    []string
}

// NewCache creates a result cache with the default capacity.
func NewCache() *Cache {
	return NewCacheWithCapacity(defaultCacheCapacity)
}

// NewCacheWithCapacity creates a result cache holding at most capacity
// results.
func NewCacheWithCapacity(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*cacheEntry),
	}
}

// Store records a result under its execution id. An existing cancelled
// entry is never overwritten; everything else is write-once by virtue of
// execution ids being unique per dispatch.
func (c *Cache) Store(workflowID string, result *workflow.ExecutionResult) {
	if result == nil || result.ExecutionID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[result.ExecutionID]; ok {
		if existing.result.Status == workflow.StatusCancelled {
			return
		}
		existing.result = *result
		return
	}

	c.entries[result.ExecutionID] = &cacheEntry{workflowID: workflowID, result: *result}
	c.order = append(c.order, result.ExecutionID)
	for len(c.order) > c.capacity {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// Get returns a copy of the cached result, if any.
func (c *Cache) Get(executionID string) (*workflow.ExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[executionID]
	if !ok {
		return nil, false
	}
	result := entry.result
	return &result, true
}

// MarkCancelled flips the cached result to cancelled. The flag is sticky:
// later Store calls for the same execution cannot undo it.
func (c *Cache) MarkCancelled(executionID string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[executionID]
	if !ok {
		return false
	}
	entry.result.Status = workflow.StatusCancelled
	entry.result.Success = false
	entry.result.Error = &workflow.ExecutionError{
		Code:    workflow.ErrCodeCancelled,
		Message: "execution was cancelled",
	}
	entry.result.Timestamp = at
	return true
}

// History lists cached results for one workflow, newest first.
func (c *Cache) History(workflowID string, limit int) []workflow.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var results []workflow.ExecutionResult
	for i := len(c.order) - 1; i >= 0 && (limit <= 0 || len(results) < limit); i-- {
		entry := c.entries[c.order[i]]
		if entry == nil || entry.workflowID != workflowID {
			continue
		}
		results = append(results, entry.result)
	}
	return results
}
