package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultCreator_ManualSettingKeepsRequest(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	instances, err := creator.Create(context.Background(), InstanceData{
		JobDefinitionID:    "plain",
		InstanceResourceID: "plain-1",
		Name:               "worker",
		Replicas:           2,
		InputQueue:         queue("in"),
		ExtraQueues:        []QueueReference{Queue("x1")},
	}, nil)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst := instances[0]
	require.Equal(t, "plain-1", inst.ResourceID())
	require.Equal(t, "worker", inst.Name())
	require.Equal(t, 2, inst.Replicas())
	require.Equal(t, ManualSetting, inst.ReplicationMode())
	require.Equal(t, "in", inst.InputQueue().Identifier)
	require.Equal(t, []QueueReference{Queue("x1")}, inst.ExtraQueues())
	require.Equal(t, "plain", inst.DefinitionID())
}

func TestDefaultCreator_FollowQueueFansOut(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	instances, err := creator.Create(context.Background(), InstanceData{
		JobDefinitionID:    "plain",
		InstanceResourceID: "requested",
		ReplicationMode:    FollowQueue,
		ExtraQueues:        []QueueReference{Queue("Q1"), Queue("Q2"), Queue("Q3")},
	}, nil)
	require.NoError(t, err)
	require.Len(t, instances, 3)

	ids := make(map[string]bool)
	for n, inst := range instances {
		require.Equal(t, ManualSetting, inst.ReplicationMode())
		require.Equal(t, fmt.Sprintf("Q%d", n+1), inst.InputQueue().Identifier)
		require.NotEqual(t, "requested", inst.ResourceID())
		require.Len(t, inst.ExtraQueues(), 3)
		ids[inst.ResourceID()] = true
	}
	require.Len(t, ids, 3, "each instance gets its own id")
}

func TestDefaultCreator_FollowQueueWithoutExtraQueues(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	instances, err := creator.Create(context.Background(), InstanceData{
		JobDefinitionID: "plain",
		ReplicationMode: FollowQueue,
	}, nil)
	require.NoError(t, err)
	require.Empty(t, instances)
}

func TestDefaultCreator_FollowQueueProperty(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z][a-z0-9]{0,6}`), rapid.ID[string]).Draw(rt, "queues")
		queues := make([]QueueReference, len(names))
		for n, name := range names {
			queues[n] = Queue(name)
		}

		instances, err := creator.Create(context.Background(), InstanceData{
			JobDefinitionID: "plain",
			ReplicationMode: FollowQueue,
			ExtraQueues:     queues,
		}, nil)
		require.NoError(rt, err)
		require.Len(rt, instances, len(queues))

		for n, inst := range instances {
			require.Equal(rt, ManualSetting, inst.ReplicationMode())
			require.Equal(rt, queues[n], *inst.InputQueue())
		}
	})
}

func TestDefaultCreator_Parameters(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := creator.Create(ctx, InstanceData{JobDefinitionID: "etl"}, nil)
		require.ErrorIs(t, err, ErrParametersRequired)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := creator.Create(ctx, InstanceData{
			JobDefinitionID: "etl",
			Parameters:      otherParams{Name: "x"},
		}, nil)
		require.ErrorIs(t, err, ErrParametersType)
	})

	t.Run("pointer is not the value type", func(t *testing.T) {
		_, err := creator.Create(ctx, InstanceData{
			JobDefinitionID: "etl",
			Parameters:      &etlParams{Source: "s3"},
		}, nil)
		require.ErrorIs(t, err, ErrParametersType)
	})

	t.Run("map is not converted", func(t *testing.T) {
		_, err := creator.Create(ctx, InstanceData{
			JobDefinitionID: "etl",
			Parameters:      map[string]any{"source": "s3"},
		}, nil)
		require.ErrorIs(t, err, ErrParametersType)
	})

	t.Run("matching type", func(t *testing.T) {
		params := etlParams{Source: "s3", Limit: 10}
		instances, err := creator.Create(ctx, InstanceData{
			JobDefinitionID: "etl",
			Parameters:      params,
		}, nil)
		require.NoError(t, err)
		require.Len(t, instances, 1)
		require.Equal(t, params, instances[0].Parameters())
	})

	t.Run("ignored without declared type", func(t *testing.T) {
		instances, err := creator.Create(ctx, InstanceData{
			JobDefinitionID: "plain",
			Parameters:      otherParams{Name: "x"},
		}, nil)
		require.NoError(t, err)
		require.Len(t, instances, 1)
	})
}

func TestDefaultCreator_InterfaceParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	RegisterParameters[describer](f.params, "describer")
	spec, err := f.params.Spec("describer")
	require.NoError(t, err)
	_, err = f.central.Execute(ctx, NewPutDefinition(&Definition{ResourceID: "described", Spec: spec}))
	require.NoError(t, err)

	creator := NewDefaultCreator(f.central)
	params := &etlParams{Source: "s3"}
	instances, err := creator.Create(ctx, InstanceData{JobDefinitionID: "described", Parameters: params}, nil)
	require.NoError(t, err)
	require.Same(t, params, instances[0].Parameters())

	_, err = creator.Create(ctx, InstanceData{JobDefinitionID: "described", Parameters: etlParams{}}, nil)
	require.ErrorIs(t, err, ErrParametersType, "value receiver set lacks Describe")
}

func TestDefaultCreator_UnknownDefinition(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	_, err := creator.Create(context.Background(), InstanceData{JobDefinitionID: "missing"}, nil)
	require.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestDefaultCreator_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)
	ctx := context.Background()

	_, err := creator.Create(ctx, InstanceData{}, nil)
	require.ErrorIs(t, err, ErrMissingDefinitionID)

	_, err = creator.Create(ctx, InstanceData{JobDefinitionID: "plain", ReplicationMode: "sideways"}, nil)
	require.ErrorIs(t, err, ErrInvalidReplicationMode)
}

func TestDefaultCreator_MergesMeta(t *testing.T) {
	f := newFixture(t)
	creator := NewDefaultCreator(f.central)

	request := map[string]string{"owner": "ops", "created_by": "request"}
	instances, err := creator.Create(context.Background(), InstanceData{
		JobDefinitionID: "plain",
		Meta:            request,
	}, map[string]string{"created_by": "creator"})
	require.NoError(t, err)

	require.Equal(t, map[string]string{"owner": "ops", "created_by": "creator"}, instances[0].Meta())
	require.Equal(t, "request", request["created_by"], "request meta is not modified")
}
