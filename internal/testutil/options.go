package testutil

import (
	"encoding/json"

	"github.com/zjrosen/turbo/internal/jobs"
)

// RecordOption configures a record added with Builder.WithRecord.
type RecordOption func(*jobs.Record)

// Definition sets the job definition id.
func Definition(id string) RecordOption {
	return func(r *jobs.Record) { r.JobDefinitionID = id }
}

// Name sets the instance name.
func Name(name string) RecordOption {
	return func(r *jobs.Record) { r.Name = name }
}

// Group sets the group path.
func Group(path string) RecordOption {
	return func(r *jobs.Record) { r.GroupPath = path }
}

// Input sets the input queue.
func Input(queue string) RecordOption {
	return func(r *jobs.Record) { r.InputQueue = queue }
}

// Extra sets the extra queues.
func Extra(queues ...string) RecordOption {
	return func(r *jobs.Record) { r.ExtraQueues = queues }
}

// Outputs sets the output queues.
func Outputs(queues ...string) RecordOption {
	return func(r *jobs.Record) { r.OutputQueues = queues }
}

// Mode sets the replication mode.
func Mode(m jobs.ReplicationMode) RecordOption {
	return func(r *jobs.Record) { r.ReplicationMode = m }
}

// Replicas sets the replica count.
func Replicas(n int) RecordOption {
	return func(r *jobs.Record) { r.Replicas = n }
}

// Params sets the parameters type name and its raw JSON value.
func Params(typeName, raw string) RecordOption {
	return func(r *jobs.Record) {
		r.ParametersType = typeName
		r.Parameters = json.RawMessage(raw)
	}
}

// Meta adds a meta entry.
func Meta(key, value string) RecordOption {
	return func(r *jobs.Record) {
		if r.Meta == nil {
			r.Meta = make(map[string]string)
		}
		r.Meta[key] = value
	}
}

// DerivedID overrides the derived id computed from the other fields.
func DerivedID(id string) RecordOption {
	return func(r *jobs.Record) { r.DerivedID = id }
}
