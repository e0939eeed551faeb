package jobs

import (
	"github.com/zjrosen/turbo/internal/command"
)

// APIID is the id the jobs extra API registers under.
const APIID = "jobs"

// Paths served by the jobs API.
const (
	PathGetDefinition    = "definitions/get"
	PathPutDefinition    = "definitions/put"
	PathListDefinitions  = "definitions/list"
	PathDeleteDefinition = "definitions/delete"
	PathCreateInstances  = "instances/create"
	PathGetInstance      = "instances/get"
	PathListInstances    = "instances/list"
	PathDeleteInstance   = "instances/delete"
	PathListCreators     = "creators/list"
)

// GetDefinitionCommand fetches a definition. The result is a *Definition,
// nil when the id is unknown.
type GetDefinitionCommand struct {
	command.BaseCommand
	DefinitionID string
}

// NewGetDefinition creates a GetDefinitionCommand.
func NewGetDefinition(id string) *GetDefinitionCommand {
	return &GetDefinitionCommand{
		BaseCommand:  command.NewBaseCommand(APIID, PathGetDefinition, command.SourceInternal),
		DefinitionID: id,
	}
}

// PutDefinitionCommand stores a definition, replacing one with the same id.
type PutDefinitionCommand struct {
	command.BaseCommand
	Definition *Definition
}

// NewPutDefinition creates a PutDefinitionCommand.
func NewPutDefinition(def *Definition) *PutDefinitionCommand {
	return &PutDefinitionCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathPutDefinition, command.SourceInternal),
		Definition:  def,
	}
}

// Validate checks the definition has an id.
func (c *PutDefinitionCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}
	return c.Definition.Validate()
}

// ListDefinitionsCommand returns []*Definition in insertion order.
type ListDefinitionsCommand struct {
	command.BaseCommand
}

// NewListDefinitions creates a ListDefinitionsCommand.
func NewListDefinitions() *ListDefinitionsCommand {
	return &ListDefinitionsCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathListDefinitions, command.SourceInternal),
	}
}

// DeleteDefinitionCommand removes a definition. The result is a bool.
type DeleteDefinitionCommand struct {
	command.BaseCommand
	DefinitionID string
}

// NewDeleteDefinition creates a DeleteDefinitionCommand.
func NewDeleteDefinition(id string) *DeleteDefinitionCommand {
	return &DeleteDefinitionCommand{
		BaseCommand:  command.NewBaseCommand(APIID, PathDeleteDefinition, command.SourceInternal),
		DefinitionID: id,
	}
}

// CreateInstancesCommand expands and stores a request. The result is the
// []*Instance that were stored.
type CreateInstancesCommand struct {
	command.BaseCommand
	Data InstanceData
	// CreatorID picks a registered creator; empty uses the first one.
	CreatorID string
	// FailIfExists turns an already stored instance into ErrInstanceExists
	// instead of an empty result.
	FailIfExists bool
}

// NewCreateInstances creates a CreateInstancesCommand.
func NewCreateInstances(data InstanceData, failIfExists bool) *CreateInstancesCommand {
	return &CreateInstancesCommand{
		BaseCommand:  command.NewBaseCommand(APIID, PathCreateInstances, command.SourceInternal),
		Data:         data,
		FailIfExists: failIfExists,
	}
}

// Validate checks the request.
func (c *CreateInstancesCommand) Validate() error {
	if err := c.BaseCommand.Validate(); err != nil {
		return err
	}
	return c.Data.Validate()
}

// GetInstanceCommand fetches an instance. The result is an *Instance, nil
// when the id is unknown.
type GetInstanceCommand struct {
	command.BaseCommand
	InstanceID string
}

// NewGetInstance creates a GetInstanceCommand.
func NewGetInstance(id string) *GetInstanceCommand {
	return &GetInstanceCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathGetInstance, command.SourceInternal),
		InstanceID:  id,
	}
}

// ListInstancesCommand returns []*Instance, optionally limited to a group
// and everything below it.
type ListInstancesCommand struct {
	command.BaseCommand
	GroupPath string
}

// NewListInstances creates a ListInstancesCommand.
func NewListInstances(groupPath string) *ListInstancesCommand {
	return &ListInstancesCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathListInstances, command.SourceInternal),
		GroupPath:   groupPath,
	}
}

// DeleteInstanceCommand removes an instance and its index entries. The
// result is a bool.
type DeleteInstanceCommand struct {
	command.BaseCommand
	InstanceID string
}

// NewDeleteInstance creates a DeleteInstanceCommand.
func NewDeleteInstance(id string) *DeleteInstanceCommand {
	return &DeleteInstanceCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathDeleteInstance, command.SourceInternal),
		InstanceID:  id,
	}
}

// ListCreatorsCommand returns the registered creator ids as []string.
type ListCreatorsCommand struct {
	command.BaseCommand
}

// NewListCreators creates a ListCreatorsCommand.
func NewListCreators() *ListCreatorsCommand {
	return &ListCreatorsCommand{
		BaseCommand: command.NewBaseCommand(APIID, PathListCreators, command.SourceInternal),
	}
}
