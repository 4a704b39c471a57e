package core

import (
	"context"
	"time"
)

// ScheduleRecord is the persisted control state of one job. Jobs themselves are
// code and are never persisted; a record only overrides the trigger and the
// pause state of a job registered under the same name.
type ScheduleRecord struct {
	Name      string        `json:"name"`
	Group     string        `json:"group"`
	Cron      string        `json:"cron"`
	Misfire   MisfirePolicy `json:"misfire"`
	Paused    bool          `json:"paused"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ScheduleStore persists schedule records across restarts.
type ScheduleStore interface {
	Save(ctx context.Context, record ScheduleRecord) error
	Delete(ctx context.Context, name string) error
	Load(ctx context.Context) ([]ScheduleRecord, error)
	Close() error
}

// RecordOf builds the record for entry.
func RecordOf(entry ScheduleEntry, now time.Time) ScheduleRecord {
	return ScheduleRecord{
		Name:      entry.Descriptor.Name,
		Group:     entry.Descriptor.Group,
		Cron:      entry.Trigger.Expression,
		Misfire:   entry.Trigger.Misfire,
		Paused:    entry.State == JobPaused,
		UpdatedAt: now,
	}
}
