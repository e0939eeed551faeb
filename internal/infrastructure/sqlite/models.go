package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/turbo/internal/jobs"
)

// InstanceModel represents a row of the job_instances table. The whole
// record is stored as JSON, the other columns are copies used for lookups.
type InstanceModel struct {
	ID              string
	JobDefinitionID string
	DerivedID       string
	GroupPath       string
	Record          string // JSON encoded jobs.Record
	CreatedAt       int64  // Unix timestamp
	UpdatedAt       int64  // Unix timestamp
}

// toInstanceModel converts a record to a row.
func toInstanceModel(rec jobs.Record, now time.Time) (*InstanceModel, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode instance %s: %w", rec.InstanceResourceID, err)
	}
	return &InstanceModel{
		ID:              rec.InstanceResourceID,
		JobDefinitionID: rec.JobDefinitionID,
		DerivedID:       rec.DerivedID,
		GroupPath:       rec.GroupPath,
		Record:          string(raw),
		CreatedAt:       now.Unix(),
		UpdatedAt:       now.Unix(),
	}, nil
}

// toRecord decodes the stored record.
func (m *InstanceModel) toRecord() (jobs.Record, error) {
	var rec jobs.Record
	if err := json.Unmarshal([]byte(m.Record), &rec); err != nil {
		return jobs.Record{}, fmt.Errorf("failed to decode instance %s: %w", m.ID, err)
	}
	return rec, nil
}

// InstanceNotFoundError is returned when no row matches an instance id.
type InstanceNotFoundError struct {
	ID string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("job instance not found: %s", e.ID)
}

// Is makes errors.Is(err, jobs.ErrInstanceNotFound) hold.
func (e *InstanceNotFoundError) Is(target error) bool {
	return target == jobs.ErrInstanceNotFound
}

// IsNotFound reports whether err is an InstanceNotFoundError.
func IsNotFound(err error) bool {
	var nf *InstanceNotFoundError
	return errors.As(err, &nf)
}
