package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/pathmap"
)

// ErrUnsupportedCommand is returned for commands the jobs API does not handle.
var ErrUnsupportedCommand = errors.New("unsupported jobs command")

// DefaultCreatorID is the id NewAPI registers its DefaultCreator under.
const DefaultCreatorID = "default"

var (
	definitionsRoot = pathmap.P("jobs", "definitions")
	instancesRoot   = pathmap.P("jobs", "instances")
	derivedIDsRoot  = pathmap.P("jobs", "derived_ids")
	creatorsRoot    = pathmap.P("jobs", "creators")
	groupsRoot      = pathmap.P("groups")
)

// Central is the part of the central API the jobs API stores through.
type Central interface {
	Executor
	GenerateReference(ctx context.Context, data any) (any, error)
	DataFromReference(ctx context.Context, ref any) (any, error)
	ObjectReference(ctx context.Context, ids pathmap.Path) (pathmap.Lookup, bool)
	PutObjectReference(ctx context.Context, ids pathmap.Path, ref any)
	DeleteObject(ctx context.Context, ids pathmap.Path) bool
	ListObjects(ctx context.Context, q pathmap.Query) []pathmap.Resource
}

// InstanceRepository persists instance records across restarts.
type InstanceRepository interface {
	Save(ctx context.Context, rec Record) error
	FindByID(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// APIOption configures the jobs API.
type APIOption func(*API)

// WithInstanceRepository persists created instances in repo.
func WithInstanceRepository(repo InstanceRepository) APIOption {
	return func(a *API) {
		a.repo = repo
	}
}

// WithParamTypes sets the registry used to name and decode parameters.
func WithParamTypes(params *ParamTypes) APIOption {
	return func(a *API) {
		a.params = params
	}
}

// API is the jobs extra API. Definitions live at
// ["jobs","definitions",id], instances at ["jobs","instances",id], the
// derived id index at ["jobs","derived_ids",derivedID] and group
// membership at ["groups",<group path>...,id].
type API struct {
	central Central
	repo    InstanceRepository
	params  *ParamTypes

	// mu serializes instance creation and deletion.
	mu sync.Mutex
}

// NewAPI creates the jobs API. No creator is registered; callers usually
// add NewDefaultCreator under DefaultCreatorID.
func NewAPI(central Central, opts ...APIOption) *API {
	a := &API{central: central}
	for _, opt := range opts {
		opt(a)
	}
	if a.params == nil {
		a.params = NewParamTypes()
	}
	return a
}

// ID implements the extra API contract.
func (a *API) ID() string {
	return APIID
}

// Paths lists the routes the jobs API serves.
func (a *API) Paths() []string {
	return []string{
		PathGetDefinition,
		PathPutDefinition,
		PathListDefinitions,
		PathDeleteDefinition,
		PathCreateInstances,
		PathGetInstance,
		PathListInstances,
		PathDeleteInstance,
		PathListCreators,
	}
}

// ParamTypes returns the parameters registry.
func (a *API) ParamTypes() *ParamTypes {
	return a.params
}

// RegisterCreator stores c under id. The first registered creator is the
// default for requests that do not name one.
func (a *API) RegisterCreator(ctx context.Context, id string, c Creator) error {
	return a.put(ctx, creatorsRoot.JoinStr(id), c)
}

// Execute dispatches a jobs command.
func (a *API) Execute(ctx context.Context, cmd command.Command) (any, error) {
	switch c := cmd.(type) {
	case *GetDefinitionCommand:
		def, err := a.getDefinition(ctx, c.DefinitionID)
		if err != nil || def == nil {
			return nil, err
		}
		return def, nil
	case *PutDefinitionCommand:
		return nil, a.putDefinition(ctx, c.Definition)
	case *ListDefinitionsCommand:
		return a.listDefinitions(ctx)
	case *DeleteDefinitionCommand:
		return a.central.DeleteObject(ctx, definitionsRoot.JoinStr(c.DefinitionID)), nil
	case *CreateInstancesCommand:
		return a.createInstances(ctx, c)
	case *GetInstanceCommand:
		inst, err := a.getInstance(ctx, c.InstanceID)
		if err != nil || inst == nil {
			return nil, err
		}
		return inst, nil
	case *ListInstancesCommand:
		return a.listInstances(ctx, c.GroupPath)
	case *DeleteInstanceCommand:
		return a.deleteInstance(ctx, c.InstanceID)
	case *ListCreatorsCommand:
		return a.creatorIDs(ctx), nil
	default:
		return nil, fmt.Errorf("%w: %s/%s (%T)", ErrUnsupportedCommand, cmd.APIIdentifier(), cmd.APIPath(), cmd)
	}
}

func (a *API) getDefinition(ctx context.Context, id string) (*Definition, error) {
	v, ok, err := a.get(ctx, definitionsRoot.JoinStr(id))
	if err != nil || !ok {
		return nil, err
	}
	def, _ := v.(*Definition)
	return def, nil
}

func (a *API) putDefinition(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	stored := *def
	if stored.Spec.Parameters != nil && stored.Spec.ParametersName == "" {
		if name, ok := a.params.NameOf(stored.Spec.Parameters); ok {
			stored.Spec.ParametersName = name
		}
	}
	if err := a.put(ctx, definitionsRoot.JoinStr(def.ResourceID), &stored); err != nil {
		return err
	}
	log.Debug(log.CatJobs, "definition stored", "definition", def.ResourceID)
	return nil
}

func (a *API) listDefinitions(ctx context.Context) ([]*Definition, error) {
	values, err := a.list(ctx, definitionsRoot)
	if err != nil {
		return nil, err
	}
	defs := make([]*Definition, 0, len(values))
	for _, v := range values {
		if def, ok := v.(*Definition); ok {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (a *API) creatorIDs(ctx context.Context) []string {
	var ids []string
	for _, r := range a.central.ListObjects(ctx, pathmap.Query{Prefix: creatorsRoot}) {
		if len(r.Path) == len(creatorsRoot)+1 {
			ids = append(ids, r.Path.Last().String())
		}
	}
	return ids
}

func (a *API) creator(ctx context.Context, id string) (Creator, string, error) {
	if id == "" {
		ids := a.creatorIDs(ctx)
		if len(ids) == 0 {
			return nil, "", fmt.Errorf("%w: none registered", ErrCreatorNotFound)
		}
		id = ids[0]
	}
	v, ok, err := a.get(ctx, creatorsRoot.JoinStr(id))
	if err != nil {
		return nil, "", err
	}
	c, _ := v.(Creator)
	if !ok || c == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrCreatorNotFound, id)
	}
	return c, id, nil
}

func (a *API) createInstances(ctx context.Context, cmd *CreateInstancesCommand) ([]*Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	creator, creatorID, err := a.creator(ctx, cmd.CreatorID)
	if err != nil {
		return nil, err
	}

	created, err := creator.Create(ctx, cmd.Data, map[string]string{"created_by": instancesRoot.String()})
	if err != nil {
		return nil, err
	}

	instances := make([]*Instance, 0, len(created))
	for _, inst := range created {
		if id, ok, err := a.derivedInstanceID(ctx, inst.DerivedID()); err != nil {
			return nil, err
		} else if ok {
			inst = inst.WithResourceID(id)
		}
		instances = append(instances, inst)

		existsByID := a.has(ctx, instancesRoot.JoinStr(inst.ResourceID()))
		existsByDerived := a.has(ctx, derivedIDsRoot.JoinStr(inst.DerivedID()))
		if existsByID || existsByDerived {
			key := inst.ResourceID()
			if !existsByID {
				key = inst.DerivedID()
			}
			if cmd.FailIfExists {
				return nil, fmt.Errorf("%w: %s", ErrInstanceExists, key)
			}
			log.Debug(log.CatJobs, "instance already exists, nothing created", "key", key)
			return []*Instance{}, nil
		}
	}

	// All or nothing: a failure undoes the instances of this request that
	// were already indexed or persisted.
	var stored []*Instance
	rollback := func() {
		for _, inst := range stored {
			a.unindex(ctx, inst)
			if a.repo != nil {
				_ = a.repo.Delete(ctx, inst.ResourceID())
			}
		}
	}
	for _, inst := range instances {
		stored = append(stored, inst)
		if err := a.index(ctx, inst); err != nil {
			rollback()
			return nil, err
		}
		if a.repo == nil {
			continue
		}
		rec, err := inst.Record()
		if err != nil {
			rollback()
			return nil, err
		}
		if err := a.repo.Save(ctx, rec); err != nil {
			rollback()
			return nil, fmt.Errorf("persist instance %s: %w", inst.ResourceID(), err)
		}
	}

	log.Info(log.CatJobs, "instances created",
		"definition", cmd.Data.JobDefinitionID,
		"creator", creatorID,
		"count", len(instances),
	)
	return instances, nil
}

// index stores inst and its derived id and group entries.
func (a *API) index(ctx context.Context, inst *Instance) error {
	id := inst.ResourceID()
	if err := a.put(ctx, instancesRoot.JoinStr(id), inst); err != nil {
		return err
	}
	if err := a.put(ctx, derivedIDsRoot.JoinStr(inst.DerivedID()), id); err != nil {
		return err
	}
	return a.put(ctx, groupPath(inst.GroupPath()).JoinStr(id), id)
}

// unindex removes what index stored for inst.
func (a *API) unindex(ctx context.Context, inst *Instance) {
	id := inst.ResourceID()
	a.central.DeleteObject(ctx, instancesRoot.JoinStr(id))
	a.central.DeleteObject(ctx, derivedIDsRoot.JoinStr(inst.DerivedID()))
	a.central.DeleteObject(ctx, groupPath(inst.GroupPath()).JoinStr(id))
}

func (a *API) derivedInstanceID(ctx context.Context, derived string) (string, bool, error) {
	v, ok, err := a.get(ctx, derivedIDsRoot.JoinStr(derived))
	if err != nil || !ok {
		return "", false, err
	}
	id, ok := v.(string)
	return id, ok, nil
}

func (a *API) getInstance(ctx context.Context, id string) (*Instance, error) {
	v, ok, err := a.get(ctx, instancesRoot.JoinStr(id))
	if err != nil || !ok {
		return nil, err
	}
	inst, _ := v.(*Instance)
	return inst, nil
}

func (a *API) listInstances(ctx context.Context, group string) ([]*Instance, error) {
	if group == "" {
		values, err := a.list(ctx, instancesRoot)
		if err != nil {
			return nil, err
		}
		out := make([]*Instance, 0, len(values))
		for _, v := range values {
			if inst, ok := v.(*Instance); ok {
				out = append(out, inst)
			}
		}
		return out, nil
	}

	ids, err := a.list(ctx, groupPath(group))
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, 0, len(ids))
	for _, v := range ids {
		id, _ := v.(string)
		inst, err := a.getInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (a *API) deleteInstance(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	inst, err := a.getInstance(ctx, id)
	if err != nil || inst == nil {
		return false, err
	}

	if a.repo != nil {
		if err := a.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrInstanceNotFound) {
			return false, fmt.Errorf("delete persisted instance %s: %w", id, err)
		}
	}
	a.unindex(ctx, inst)

	log.Info(log.CatJobs, "instance deleted", "instance", id)
	return true, nil
}

// CoerceRequest decodes generic parameters in data, such as a map read from
// JSON or YAML, into the parameters type of the named definition. Requests
// for unknown definitions are returned unchanged.
func (a *API) CoerceRequest(ctx context.Context, data InstanceData) (InstanceData, error) {
	def, err := a.getDefinition(ctx, data.JobDefinitionID)
	if err != nil || def == nil {
		return data, err
	}
	params, err := Coerce(def.Spec.Parameters, data.Parameters)
	if err != nil {
		return data, err
	}
	data.Parameters = params
	return data, nil
}

// Load rebuilds the stored instances from the repository, decoding their
// parameters into each definition's type. Records whose definition is
// unknown are skipped. It returns the number of instances restored.
func (a *API) Load(ctx context.Context) (int, error) {
	if a.repo == nil {
		return 0, nil
	}
	recs, err := a.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list persisted instances: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	restored := 0
	for _, rec := range recs {
		def, err := a.getDefinition(ctx, rec.JobDefinitionID)
		if err != nil {
			return restored, err
		}
		if def == nil {
			log.Warn(log.CatJobs, "skipping instance of unknown definition",
				"instance", rec.InstanceResourceID,
				"definition", rec.JobDefinitionID,
			)
			continue
		}

		data := rec.Data()
		if def.Spec.Parameters != nil && data.Parameters == nil {
			return restored, fmt.Errorf("%w: stored instance %s of %s has none", ErrParametersRequired, rec.InstanceResourceID, def.ResourceID)
		}
		params, err := Coerce(def.Spec.Parameters, data.Parameters)
		if err != nil {
			return restored, fmt.Errorf("restore instance %s: %w", rec.InstanceResourceID, err)
		}
		data.Parameters = params

		if err := a.index(ctx, NewInstance(def, data)); err != nil {
			return restored, err
		}
		restored++
	}

	log.Info(log.CatJobs, "instances restored", "count", restored, "stored", len(recs))
	return restored, nil
}

func (a *API) put(ctx context.Context, path pathmap.Path, v any) error {
	ref, err := a.central.GenerateReference(ctx, v)
	if err != nil {
		return fmt.Errorf("generate reference for %s: %w", path, err)
	}
	a.central.PutObjectReference(ctx, path, ref)
	return nil
}

func (a *API) get(ctx context.Context, path pathmap.Path) (any, bool, error) {
	l, ok := a.central.ObjectReference(ctx, path)
	if !ok || l.Kind != pathmap.KindValue {
		return nil, false, nil
	}
	v, err := a.central.DataFromReference(ctx, l.Value)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", path, err)
	}
	return v, true, nil
}

func (a *API) has(ctx context.Context, path pathmap.Path) bool {
	l, ok := a.central.ObjectReference(ctx, path)
	return ok && l.Kind == pathmap.KindValue
}

// list resolves every value stored below prefix.
func (a *API) list(ctx context.Context, prefix pathmap.Path) ([]any, error) {
	var out []any
	for _, r := range a.central.ListObjects(ctx, pathmap.Query{Prefix: prefix}) {
		v, err := a.central.DataFromReference(ctx, r.Value)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", r.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func groupPath(group string) pathmap.Path {
	return groupsRoot.Join(pathmap.ParsePath(group, pathmap.Separator)...)
}
