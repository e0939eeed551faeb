package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/turbo/internal/log"
)

// DefinitionFile is the YAML layout of a definitions file.
type DefinitionFile struct {
	Definitions []DefinitionEntry `yaml:"definitions"`
}

// DefinitionEntry is one definition in a definitions file. Parameters
// names a type registered in ParamTypes.
type DefinitionEntry struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Parameters  string            `yaml:"parameters,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// Request is a creation request as read from a file or an HTTP body.
type Request struct {
	InstanceData `yaml:",inline"`
	CreatorID    string `json:"creator_id,omitempty" yaml:"creator_id,omitempty"`
	FailIfExists bool   `json:"fail_if_exists,omitempty" yaml:"fail_if_exists,omitempty"`
}

// Command builds the CreateInstancesCommand for the request.
func (r Request) Command() *CreateInstancesCommand {
	cmd := NewCreateInstances(r.InstanceData, r.FailIfExists)
	cmd.CreatorID = r.CreatorID
	return cmd
}

// LoadDefinitions reads a definitions file.
func LoadDefinitions(path string, params *ParamTypes) ([]*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read definitions file: %w", err)
	}
	defs, err := ParseDefinitions(bytes.NewReader(data), params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions decodes a definitions document. Every entry needs an id
// and ids must be unique.
func ParseDefinitions(r io.Reader, params *ParamTypes) ([]*Definition, error) {
	var file DefinitionFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	seen := make(map[string]bool, len(file.Definitions))
	defs := make([]*Definition, 0, len(file.Definitions))
	for n, entry := range file.Definitions {
		if entry.ID == "" {
			return nil, fmt.Errorf("definition %d: %w", n, ErrMissingDefinitionID)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("definition %s: duplicate id", entry.ID)
		}
		seen[entry.ID] = true

		spec, err := params.Spec(entry.Parameters)
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", entry.ID, err)
		}
		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		defs = append(defs, &Definition{
			ResourceID:  entry.ID,
			Name:        name,
			Description: entry.Description,
			Spec:        spec,
			Labels:      entry.Labels,
		})
	}
	return defs, nil
}

// LoadRequest reads a creation request file.
func LoadRequest(path string) (Request, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is given by the user
	if err != nil {
		return Request{}, fmt.Errorf("read request file: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("parse request %s: %w", path, err)
	}
	return req, nil
}

// SyncDefinitions makes the stored definitions equal to defs: each is put,
// and stored definitions missing from defs are deleted. Commands go through
// exec so a command processor can serialize them.
func SyncDefinitions(ctx context.Context, exec Executor, defs []*Definition) error {
	res, err := exec.Execute(ctx, NewListDefinitions())
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}
	existing, _ := res.([]*Definition)

	wanted := make(map[string]bool, len(defs))
	for _, def := range defs {
		wanted[def.ResourceID] = true
		if _, err := exec.Execute(ctx, NewPutDefinition(def)); err != nil {
			return fmt.Errorf("put definition %s: %w", def.ResourceID, err)
		}
	}

	removed := 0
	for _, def := range existing {
		if wanted[def.ResourceID] {
			continue
		}
		if _, err := exec.Execute(ctx, NewDeleteDefinition(def.ResourceID)); err != nil {
			return fmt.Errorf("delete definition %s: %w", def.ResourceID, err)
		}
		removed++
	}

	log.Info(log.CatJobs, "definitions synced", "count", len(defs), "removed", removed)
	return nil
}
