package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Deepreo/kronos/core"
)

// InMemoryRegistry keeps schedule entries in a map guarded by an RWMutex.
type InMemoryRegistry struct {
	entries map[string]core.ScheduleEntry
	mu      sync.RWMutex
}

var _ core.Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		entries: make(map[string]core.ScheduleEntry),
	}
}

func (r *InMemoryRegistry) Insert(name string, entry core.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateJobName, name)
	}
	r.entries[name] = entry
	return nil
}

func (r *InMemoryRegistry) Get(name string) (core.ScheduleEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return entry, ok
}

func (r *InMemoryRegistry) ReplaceTrigger(name string, trigger core.Trigger) error {
	return r.Update(name, func(entry *core.ScheduleEntry) error {
		entry.Trigger = trigger
		return nil
	})
}

func (r *InMemoryRegistry) Update(name string, fn func(entry *core.ScheduleEntry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, name)
	}
	if err := fn(&entry); err != nil {
		return err
	}
	r.entries[name] = entry
	return nil
}

func (r *InMemoryRegistry) Remove(name string) (core.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return core.ScheduleEntry{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, name)
	}
	delete(r.entries, name)
	return entry, nil
}

func (r *InMemoryRegistry) ListByGroup(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0)
	for name, entry := range r.entries {
		if entry.Descriptor.Group == group {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *InMemoryRegistry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
