package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Deepreo/kronos/core"
)

// Memory keeps schedule records in process. It is mostly useful in tests and
// for embedding without an external database.
type Memory struct {
	mu      sync.RWMutex
	records map[string]core.ScheduleRecord
}

var _ core.ScheduleStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]core.ScheduleRecord)}
}

func (m *Memory) Save(_ context.Context, record core.ScheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Name] = record
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// Load returns every record ordered by name.
func (m *Memory) Load(_ context.Context) ([]core.ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]core.ScheduleRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}

func (m *Memory) Close() error {
	return nil
}

func sortRecords(records []core.ScheduleRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
}
