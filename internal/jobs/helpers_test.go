package jobs

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/turbo/internal/central"
	"github.com/zjrosen/turbo/internal/reference"
)

var _ central.ExtraAPI = (*API)(nil)

type etlParams struct {
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

type otherParams struct {
	Name string `json:"name"`
}

type describer interface {
	Describe() string
}

func (p *etlParams) Describe() string { return p.Source }

func reflectType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// memoryRepo is an InstanceRepository kept in a map.
type memoryRepo struct {
	mu    sync.Mutex
	order []string
	recs  map[string]Record

	// failSave makes the nth Save, counting from 1, return errSaveFailed.
	failSave int
	saves    int
}

var errSaveFailed = errors.New("save failed")

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{recs: make(map[string]Record)}
}

func (r *memoryRepo) Save(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saves == r.failSave {
		return errSaveFailed
	}
	if _, ok := r.recs[rec.InstanceResourceID]; !ok {
		r.order = append(r.order, rec.InstanceResourceID)
	}
	r.recs[rec.InstanceResourceID] = rec
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return Record{}, ErrInstanceNotFound
	}
	return rec, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.recs[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(r.recs, id)
	return nil
}

type fixture struct {
	central *central.API
	jobs    *API
	params  *ParamTypes
	repo    *memoryRepo
}

// newFixture wires a central API with the jobs API, a default creator and
// two definitions: "etl" taking etlParams and "plain" taking nothing.
func newFixture(t *testing.T, opts ...central.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	params := NewParamTypes()
	RegisterParameters[etlParams](params, "etl")

	repo := newMemoryRepo()
	c := central.New(opts...)
	api := NewAPI(c, WithParamTypes(params), WithInstanceRepository(repo))
	require.NoError(t, c.PutExtraAPI(ctx, api))
	require.NoError(t, api.RegisterCreator(ctx, DefaultCreatorID, NewDefaultCreator(c)))

	etlSpec, err := params.Spec("etl")
	require.NoError(t, err)
	_, err = c.Execute(ctx, NewPutDefinition(&Definition{ResourceID: "etl", Name: "ETL", Spec: etlSpec}))
	require.NoError(t, err)
	_, err = c.Execute(ctx, NewPutDefinition(&Definition{ResourceID: "plain", Name: "Plain"}))
	require.NoError(t, err)

	return &fixture{central: c, jobs: api, params: params, repo: repo}
}

func (f *fixture) create(t *testing.T, data InstanceData, failIfExists bool) ([]*Instance, error) {
	t.Helper()
	res, err := f.central.Execute(context.Background(), NewCreateInstances(data, failIfExists))
	if err != nil {
		return nil, err
	}
	return res.([]*Instance), nil
}

var errRefFailed = errors.New("reference failed")

// instanceFailingStore refuses to reference the nth instance it sees.
type instanceFailingStore struct {
	reference.Identity
	failAt int
	seen   int
}

func (s *instanceFailingStore) GenerateReference(ctx context.Context, data any) (any, error) {
	if _, ok := data.(*Instance); ok {
		s.seen++
		if s.seen == s.failAt {
			return nil, errRefFailed
		}
	}
	return s.Identity.GenerateReference(ctx, data)
}
