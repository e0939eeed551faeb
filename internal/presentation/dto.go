package presentation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/pathmap"
)

// DefinitionDTO represents a job definition for presentation
type DefinitionDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Parameters  string   `json:"parameters,omitempty"`
	Labels      []string `json:"labels,omitempty"` // "key=value", sorted
}

// InstanceDTO represents a job instance for presentation
type InstanceDTO struct {
	ID           string   `json:"id"`
	DefinitionID string   `json:"job_definition_id"`
	Name         string   `json:"name"`
	Group        string   `json:"group_path,omitempty"`
	Mode         string   `json:"replication_mode"`
	Replicas     int      `json:"replicas"`
	InputQueue   string   `json:"input_queue,omitempty"`
	OutputQueues []string `json:"output_queues,omitempty"`
	DerivedID    string   `json:"derived_id"`
}

// ObjectDTO represents a registry entry for presentation
type ObjectDTO struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// FromDefinition converts a job definition to a DTO
func FromDefinition(def *jobs.Definition) DefinitionDTO {
	labels := make([]string, 0, len(def.Labels))
	for k, v := range def.Labels {
		labels = append(labels, k+"="+v)
	}
	sort.Strings(labels)

	return DefinitionDTO{
		ID:          def.ResourceID,
		Name:        def.Name,
		Description: def.Description,
		Parameters:  def.Spec.ParametersName,
		Labels:      labels,
	}
}

// FromInstance converts a job instance to a DTO
func FromInstance(inst *jobs.Instance) InstanceDTO {
	dto := InstanceDTO{
		ID:           inst.ResourceID(),
		DefinitionID: inst.DefinitionID(),
		Name:         inst.Name(),
		Group:        inst.GroupPath(),
		Mode:         inst.ReplicationMode().String(),
		Replicas:     inst.Replicas(),
		DerivedID:    inst.DerivedID(),
	}
	if q := inst.InputQueue(); q != nil {
		dto.InputQueue = q.Identifier
	}
	for _, q := range inst.OutputQueues() {
		dto.OutputQueues = append(dto.OutputQueues, q.Identifier)
	}
	return dto
}

// FromResource converts a registry entry to a DTO. Values that are neither
// strings nor fmt.Stringers are shown by type only.
func FromResource(res pathmap.Resource) ObjectDTO {
	dto := ObjectDTO{
		Path: res.Path.String(),
		Type: fmt.Sprintf("%T", res.Value),
	}
	switch v := res.Value.(type) {
	case string:
		dto.Value = v
	case fmt.Stringer:
		dto.Value = v.String()
	}
	return dto
}

// FromDefinitions converts a list of definitions
func FromDefinitions(defs []*jobs.Definition) []DefinitionDTO {
	out := make([]DefinitionDTO, 0, len(defs))
	for _, def := range defs {
		out = append(out, FromDefinition(def))
	}
	return out
}

// FromInstances converts a list of instances
func FromInstances(instances []*jobs.Instance) []InstanceDTO {
	out := make([]InstanceDTO, 0, len(instances))
	for _, inst := range instances {
		out = append(out, FromInstance(inst))
	}
	return out
}

// FromResources converts a list of registry entries
func FromResources(resources []pathmap.Resource) []ObjectDTO {
	out := make([]ObjectDTO, 0, len(resources))
	for _, res := range resources {
		out = append(out, FromResource(res))
	}
	return out
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
