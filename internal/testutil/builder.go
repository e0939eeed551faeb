// Package testutil provides builders for job instance records and an
// in-memory instance repository.
package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/turbo/internal/jobs"
)

// NewRecord builds a record for a ManualSetting instance of the "plain"
// definition with one replica, then applies opts. Unless overridden, the
// derived id is computed the same way Instance.DerivedID does.
func NewRecord(id string, opts ...RecordOption) jobs.Record {
	rec := jobs.Record{
		InstanceResourceID: id,
		JobDefinitionID:    "plain",
		Replicas:           1,
		ReplicationMode:    jobs.ManualSetting,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	if rec.DerivedID == "" {
		rec.DerivedID = derivedID(rec)
	}
	return rec
}

func derivedID(rec jobs.Record) string {
	var idQueues []string
	if rec.InputQueue != "" {
		idQueues = append(idQueues, rec.InputQueue)
	}
	if rec.ReplicationMode == jobs.FollowQueue {
		idQueues = append(idQueues, rec.ExtraQueues...)
	}
	return strings.Join([]string{
		rec.Name,
		rec.JobDefinitionID,
		rec.GroupPath,
		string(rec.ReplicationMode),
		strings.Join(idQueues, ","),
		strings.Join(rec.OutputQueues, ","),
	}, ":")
}

// Builder accumulates records and saves them in order.
type Builder struct {
	t       *testing.T
	repo    jobs.InstanceRepository
	records []jobs.Record
}

// NewBuilder creates a builder saving into repo.
func NewBuilder(t *testing.T, repo jobs.InstanceRepository) *Builder {
	t.Helper()
	return &Builder{t: t, repo: repo}
}

// WithRecord adds a record with optional configuration.
func (b *Builder) WithRecord(id string, opts ...RecordOption) *Builder {
	b.records = append(b.records, NewRecord(id, opts...))
	return b
}

// Build saves all accumulated records and returns them.
func (b *Builder) Build() []jobs.Record {
	b.t.Helper()
	ctx := context.Background()
	for _, rec := range b.records {
		require.NoError(b.t, b.repo.Save(ctx, rec), "saving %s", rec.InstanceResourceID)
	}
	return b.records
}
