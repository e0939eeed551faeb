package testutil

import "github.com/zjrosen/turbo/internal/jobs"

// WithStandardRecords adds the standard dataset: two ETL instances fanned
// out from one follow-queue request, one plain instance in a nested group
// and one orphan whose definition no longer exists.
func (b *Builder) WithStandardRecords() *Builder {
	return b.
		WithRecord("etl-q1",
			Definition("etl"), Name("loader"), Group("pipelines/nightly"),
			Input("q1"), Outputs("warehouse"),
			Params("etl", `{"source":"s3","limit":10}`),
			Meta("created_by", "jobs/instances")).
		WithRecord("etl-q2",
			Definition("etl"), Name("loader"), Group("pipelines/nightly"),
			Input("q2"), Outputs("warehouse"),
			Params("etl", `{"source":"s3","limit":10}`),
			Meta("created_by", "jobs/instances")).
		WithRecord("plain-1",
			Name("cleanup"), Group("pipelines"), Replicas(3)).
		WithRecord("orphan-1",
			Definition("retired"), Mode(jobs.ManualSetting))
}
