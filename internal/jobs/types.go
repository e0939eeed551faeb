// Package jobs materializes job instances from job definitions.
//
// A Definition describes a job and the Go type of its parameters. An
// InstanceData request names a definition and how it should be deployed;
// a Creator expands it into concrete Instances. With ReplicationMode
// FollowQueue one instance is produced per extra queue, each promoted to be
// that instance's input queue. The expansion happens once, at creation:
// queues added to a request later are not picked up, callers that need
// that must create again.
//
// The jobs extra API (API) stores definitions and instances in the central
// API's path tree and is addressed through commands such as
// NewGetDefinition and NewCreateInstances.
package jobs

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// ReplicationMode decides how a request expands into instances.
type ReplicationMode string

const (
	// ManualSetting produces exactly one instance from the request.
	ManualSetting ReplicationMode = "manual_setting"
	// FollowQueue produces one instance per extra queue.
	FollowQueue ReplicationMode = "follow_queue"
)

// Valid reports whether m is a known mode.
func (m ReplicationMode) Valid() bool {
	return m == ManualSetting || m == FollowQueue
}

func (m ReplicationMode) String() string {
	return string(m)
}

// QueueReference names a queue.
type QueueReference struct {
	Identifier string `json:"identifier" yaml:"identifier"`
}

// Queue builds a QueueReference.
func Queue(id string) QueueReference {
	return QueueReference{Identifier: id}
}

// UnmarshalYAML accepts either a bare identifier or {identifier: ...}.
func (q *QueueReference) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		q.Identifier = node.Value
		return nil
	}
	type plain QueueReference
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*q = QueueReference(p)
	return nil
}

// DefinitionSpec holds the typed part of a definition.
type DefinitionSpec struct {
	// Parameters is the type instance parameters must have. Nil means the
	// job takes no parameters.
	Parameters reflect.Type
	// ParametersName is the name Parameters is registered under in ParamTypes.
	ParametersName string
}

// Definition describes a job that instances can be created from.
type Definition struct {
	ResourceID  string
	Name        string
	Description string
	Spec        DefinitionSpec
	Labels      map[string]string
}

// Validate checks the definition can be stored.
func (d *Definition) Validate() error {
	if d == nil || d.ResourceID == "" {
		return ErrMissingDefinitionID
	}
	return nil
}

// Hints are free-form scheduling hints handed to the runtime.
type Hints map[string]string

// InstanceData is a request to materialize one or more instances of a
// job definition.
type InstanceData struct {
	JobDefinitionID    string            `json:"job_definition_id" yaml:"job_definition_id"`
	InstanceResourceID string            `json:"instance_resource_id,omitempty" yaml:"instance_resource_id,omitempty"`
	Name               string            `json:"name,omitempty" yaml:"name,omitempty"`
	Replicas           int               `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	ReplicationMode    ReplicationMode   `json:"replication_mode,omitempty" yaml:"replication_mode,omitempty"`
	ReadOnly           bool              `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	GroupPath          string            `json:"group_path,omitempty" yaml:"group_path,omitempty"`
	InputQueue         *QueueReference   `json:"input_queue,omitempty" yaml:"input_queue,omitempty"`
	ExtraQueues        []QueueReference  `json:"extra_queues,omitempty" yaml:"extra_queues,omitempty"`
	OutputQueues       []QueueReference  `json:"output_queues,omitempty" yaml:"output_queues,omitempty"`
	Parameters         any               `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Hints              Hints             `json:"hints,omitempty" yaml:"hints,omitempty"`
	Meta               map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Validate checks the request before expansion. An empty replication
// mode is read as ManualSetting.
func (d InstanceData) Validate() error {
	if d.JobDefinitionID == "" {
		return ErrMissingDefinitionID
	}
	if d.ReplicationMode != "" && !d.ReplicationMode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReplicationMode, d.ReplicationMode)
	}
	return nil
}

func (d InstanceData) mode() ReplicationMode {
	if d.ReplicationMode == "" {
		return ManualSetting
	}
	return d.ReplicationMode
}
