package jobs

import (
	"context"
	"fmt"
	"maps"

	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
)

// Executor runs commands, normally the central API.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (any, error)
}

// Creator expands a request into instances.
type Creator interface {
	Create(ctx context.Context, data InstanceData, meta map[string]string) ([]*Instance, error)
}

// DefaultCreator resolves the definition through the jobs API and expands
// the request by replication mode.
type DefaultCreator struct {
	central Executor
}

var _ Creator = (*DefaultCreator)(nil)

// NewDefaultCreator creates a DefaultCreator resolving definitions through central.
func NewDefaultCreator(central Executor) *DefaultCreator {
	return &DefaultCreator{central: central}
}

// Create expands data into instances:
//
//   - the definition is fetched with a definitions/get command and must exist
//   - parameters must satisfy CheckParameters
//   - ManualSetting yields one instance as requested
//   - any other mode yields one instance per extra queue, that queue as
//     input, mode ManualSetting, and a fresh id each
//
// meta is merged over the request's own meta.
func (c *DefaultCreator) Create(ctx context.Context, data InstanceData, meta map[string]string) ([]*Instance, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	res, err := c.central.Execute(ctx, NewGetDefinition(data.JobDefinitionID))
	if err != nil {
		return nil, fmt.Errorf("resolve job definition %s: %w", data.JobDefinitionID, err)
	}
	def, _ := res.(*Definition)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, data.JobDefinitionID)
	}

	if err := CheckParameters(def, data.Parameters); err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		merged := maps.Clone(data.Meta)
		if merged == nil {
			merged = make(map[string]string, len(meta))
		}
		maps.Copy(merged, meta)
		data.Meta = merged
	}
	data.JobDefinitionID = ""

	if data.mode() == ManualSetting {
		return []*Instance{NewInstance(def, data)}, nil
	}

	instances := make([]*Instance, 0, len(data.ExtraQueues))
	for _, q := range data.ExtraQueues {
		expanded := data
		expanded.InstanceResourceID = ""
		expanded.InputQueue = &q
		expanded.ReplicationMode = ManualSetting
		instances = append(instances, NewInstance(def, expanded))
	}

	log.Debug(log.CatJobs, "expanded follow_queue request",
		"definition", def.ResourceID,
		"queues", len(data.ExtraQueues),
	)
	return instances, nil
}
