package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a random database for isolation between runs.
	f := &FirestoreProvider{
		projectID:  "test-project-id",
		database:   fmt.Sprintf("test-db-%d", time.Now().UnixNano()),
		deployment: "test",
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Config", func(t *testing.T) {
		_, _, err := f.GetConfig(ctx)
		assert.ErrorIs(t, err, ErrConfigNotFound)

		cfg := types.Config{
			Groups: []types.GroupConfig{{ID: "g", Name: "G", Members: []types.MemberConfig{
				{ID: "a", Name: "A", SourcePair: types.SourcePair{Energy: "a_kwh"}},
			}}},
			Tariff:          types.Tariff{Enabled: true, RateType: types.RateTypeFlat, FlatRate: 0.2},
			RefreshInterval: 30 * time.Second,
		}
		require.NoError(t, f.SetConfig(ctx, cfg, types.CurrentConfigVersion))

		got, version, err := f.GetConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.CurrentConfigVersion, version)
		assert.Equal(t, cfg, got)
	})

	t.Run("OutputStates", func(t *testing.T) {
		got, err := f.GetOutputState(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)

		lastRaw := 12.0
		st := types.OutputState{
			ID:        "a_energy_meter",
			Kind:      types.OutputEnergyMeter,
			Value:     2.0,
			Available: true,
			Version:   types.CurrentStateVersion,
			UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
			Attributes: types.Attributes{
				LastRaw: &lastRaw,
				Source:  "a_kwh",
				Unit:    string(types.UnitKilowattHour),
			},
		}
		require.NoError(t, f.UpsertOutputState(ctx, st))

		got, err = f.GetOutputState(ctx, "a_energy_meter")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, st.Value, got.Value)
		require.NotNil(t, got.Attributes.LastRaw)
		assert.Equal(t, lastRaw, *got.Attributes.LastRaw)

		require.NoError(t, f.UpsertOutputState(ctx, types.OutputState{ID: "b_power", Value: 7}))
		states, err := f.ListOutputStates(ctx)
		require.NoError(t, err)
		require.Len(t, states, 2)
		assert.Equal(t, types.OutputID("a_energy_meter"), states[0].ID)

		require.NoError(t, f.DeleteOutputState(ctx, "b_power"))
		require.NoError(t, f.DeleteOutputState(ctx, "b_power"))
		states, err = f.ListOutputStates(ctx)
		require.NoError(t, err)
		assert.Len(t, states, 1)
	})

	t.Run("MissingID", func(t *testing.T) {
		err := f.UpsertOutputState(ctx, types.OutputState{})
		assert.ErrorContains(t, err, "missing id")
	})
}
