package jobs

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Instance is one concrete deployment of a Definition. Instances are
// immutable: the With methods return modified copies.
type Instance struct {
	resourceID string
	definition *Definition
	name       string
	replicas   int
	mode       ReplicationMode
	readOnly   bool
	groupPath  string
	input      *QueueReference
	extra      []QueueReference
	output     []QueueReference
	parameters any
	hints      Hints
	meta       map[string]string
}

// NewInstance builds an instance of def from data. Without an explicit
// InstanceResourceID a fresh uuid is assigned. A non-positive replica
// count becomes 1.
func NewInstance(def *Definition, data InstanceData) *Instance {
	id := data.InstanceResourceID
	if id == "" {
		id = uuid.New().String()
	}
	replicas := data.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	inst := &Instance{
		resourceID: id,
		definition: def,
		name:       data.Name,
		replicas:   replicas,
		mode:       data.mode(),
		readOnly:   data.ReadOnly,
		groupPath:  data.GroupPath,
		extra:      slices.Clone(data.ExtraQueues),
		output:     slices.Clone(data.OutputQueues),
		parameters: data.Parameters,
		hints:      maps.Clone(data.Hints),
		meta:       maps.Clone(data.Meta),
	}
	if data.InputQueue != nil {
		q := *data.InputQueue
		inst.input = &q
	}
	if inst.name == "" && def != nil {
		inst.name = def.Name
	}
	return inst
}

// ResourceID is the instance id, or the derived id for an instance built
// without one.
func (i *Instance) ResourceID() string {
	if i.resourceID == "" {
		return i.DerivedID()
	}
	return i.resourceID
}

func (i *Instance) Definition() *Definition { return i.definition }

// DefinitionID is the id of the definition the instance was created from.
func (i *Instance) DefinitionID() string {
	if i.definition == nil {
		return ""
	}
	return i.definition.ResourceID
}

func (i *Instance) Name() string                     { return i.name }
func (i *Instance) Replicas() int                    { return i.replicas }
func (i *Instance) ReplicationMode() ReplicationMode { return i.mode }
func (i *Instance) ReadOnly() bool                   { return i.readOnly }
func (i *Instance) GroupPath() string                { return i.groupPath }
func (i *Instance) Parameters() any                  { return i.parameters }

// InputQueue returns the input queue, or nil.
func (i *Instance) InputQueue() *QueueReference {
	if i.input == nil {
		return nil
	}
	q := *i.input
	return &q
}

func (i *Instance) ExtraQueues() []QueueReference  { return slices.Clone(i.extra) }
func (i *Instance) OutputQueues() []QueueReference { return slices.Clone(i.output) }
func (i *Instance) Hints() Hints                   { return maps.Clone(i.hints) }
func (i *Instance) Meta() map[string]string        { return maps.Clone(i.meta) }

// DerivedID is a composite key that is equal for structurally equivalent
// requests:
//
//	name:definitionID:groupPath:mode:idQueues:outputQueues
//
// idQueues are the input and extra queues under FollowQueue, and the input
// queue alone otherwise. Queue lists are comma-joined identifiers.
func (i *Instance) DerivedID() string {
	var idQueues []string
	if i.input != nil {
		idQueues = append(idQueues, i.input.Identifier)
	}
	if i.mode == FollowQueue {
		idQueues = append(idQueues, queueIDs(i.extra)...)
	}

	return strings.Join([]string{
		i.name,
		i.DefinitionID(),
		i.groupPath,
		string(i.mode),
		strings.Join(idQueues, ","),
		strings.Join(queueIDs(i.output), ","),
	}, ":")
}

// WithResourceID returns a copy with the given id.
func (i *Instance) WithResourceID(id string) *Instance {
	c := i.clone()
	c.resourceID = id
	return c
}

// WithInputQueue returns a copy reading from q.
func (i *Instance) WithInputQueue(q QueueReference) *Instance {
	c := i.clone()
	c.input = &q
	return c
}

// WithReplicationMode returns a copy with mode m.
func (i *Instance) WithReplicationMode(m ReplicationMode) *Instance {
	c := i.clone()
	c.mode = m
	return c
}

// WithParameters returns a copy carrying params.
func (i *Instance) WithParameters(params any) *Instance {
	c := i.clone()
	c.parameters = params
	return c
}

// Data converts the instance back into a creation request.
func (i *Instance) Data() InstanceData {
	return InstanceData{
		JobDefinitionID:    i.DefinitionID(),
		InstanceResourceID: i.resourceID,
		Name:               i.name,
		Replicas:           i.replicas,
		ReplicationMode:    i.mode,
		ReadOnly:           i.readOnly,
		GroupPath:          i.groupPath,
		InputQueue:         i.InputQueue(),
		ExtraQueues:        i.ExtraQueues(),
		OutputQueues:       i.OutputQueues(),
		Parameters:         i.parameters,
		Hints:              i.Hints(),
		Meta:               i.Meta(),
	}
}

func (i *Instance) clone() *Instance {
	c := *i
	c.extra = slices.Clone(i.extra)
	c.output = slices.Clone(i.output)
	c.hints = maps.Clone(i.hints)
	c.meta = maps.Clone(i.meta)
	if i.input != nil {
		q := *i.input
		c.input = &q
	}
	return &c
}

func queueIDs(qs []QueueReference) []string {
	ids := make([]string, len(qs))
	for n, q := range qs {
		ids[n] = q.Identifier
	}
	return ids
}

// Record is the serialized form of an Instance.
type Record struct {
	InstanceResourceID string            `json:"instance_resource_id"`
	JobDefinitionID    string            `json:"job_definition_id"`
	DerivedID          string            `json:"derived_id"`
	Name               string            `json:"name"`
	Replicas           int               `json:"replicas"`
	ReplicationMode    ReplicationMode   `json:"replication_mode"`
	ReadOnly           bool              `json:"read_only"`
	GroupPath          string            `json:"group_path"`
	InputQueue         string            `json:"input_queue,omitempty"`
	ExtraQueues        []string          `json:"extra_queues,omitempty"`
	OutputQueues       []string          `json:"output_queues,omitempty"`
	ParametersType     string            `json:"parameters_type,omitempty"`
	Parameters         json.RawMessage   `json:"parameters,omitempty"`
	Hints              Hints             `json:"hints,omitempty"`
	Meta               map[string]string `json:"meta,omitempty"`
}

// Record serializes the instance. Parameters are encoded as JSON.
func (i *Instance) Record() (Record, error) {
	rec := Record{
		InstanceResourceID: i.ResourceID(),
		JobDefinitionID:    i.DefinitionID(),
		DerivedID:          i.DerivedID(),
		Name:               i.name,
		Replicas:           i.replicas,
		ReplicationMode:    i.mode,
		ReadOnly:           i.readOnly,
		GroupPath:          i.groupPath,
		Hints:              i.hints,
		Meta:               i.meta,
	}
	if i.input != nil {
		rec.InputQueue = i.input.Identifier
	}
	if len(i.extra) > 0 {
		rec.ExtraQueues = queueIDs(i.extra)
	}
	if len(i.output) > 0 {
		rec.OutputQueues = queueIDs(i.output)
	}
	if i.definition != nil {
		rec.ParametersType = i.definition.Spec.ParametersName
	}
	if i.parameters != nil {
		raw, err := json.Marshal(i.parameters)
		if err != nil {
			return Record{}, fmt.Errorf("encode parameters of %s: %w", rec.InstanceResourceID, err)
		}
		rec.Parameters = raw
	}
	return rec, nil
}

// MarshalJSON encodes the instance as its Record.
func (i *Instance) MarshalJSON() ([]byte, error) {
	rec, err := i.Record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// Data converts a record back into a request. Parameters stay raw JSON;
// ParamTypes.Coerce turns them into the definition's type.
func (r Record) Data() InstanceData {
	data := InstanceData{
		JobDefinitionID:    r.JobDefinitionID,
		InstanceResourceID: r.InstanceResourceID,
		Name:               r.Name,
		Replicas:           r.Replicas,
		ReplicationMode:    r.ReplicationMode,
		ReadOnly:           r.ReadOnly,
		GroupPath:          r.GroupPath,
		Hints:              r.Hints,
		Meta:               r.Meta,
	}
	if r.InputQueue != "" {
		q := Queue(r.InputQueue)
		data.InputQueue = &q
	}
	for _, id := range r.ExtraQueues {
		data.ExtraQueues = append(data.ExtraQueues, Queue(id))
	}
	for _, id := range r.OutputQueues {
		data.OutputQueues = append(data.OutputQueues, Queue(id))
	}
	if len(r.Parameters) > 0 {
		data.Parameters = r.Parameters
	}
	return data
}
