// Command seed stores an example deployment configuration, for local
// development against the Firestore emulator.
package main

import (
	"context"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/storage"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	db := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding example config")

	cfg := types.Config{
		Groups: []types.GroupConfig{
			{
				ID:   "kitchen",
				Name: "Kitchen",
				Members: []types.MemberConfig{
					{ID: "oven", Name: "Oven", SourcePair: types.SourcePair{
						Power:  "sensor.oven_power",
						Energy: "sensor.oven_energy",
					}},
					{ID: "fridge", Name: "Fridge", SourcePair: types.SourcePair{
						Power:  "sensor.fridge_power",
						Energy: "sensor.fridge_energy",
					}},
					{ID: "dishwasher", Name: "Dishwasher", SourcePair: types.SourcePair{
						Power:  "sensor.dishwasher_power",
						Energy: "sensor.dishwasher_energy",
					}},
				},
				Upstream: &types.SourcePair{
					Power:  "sensor.mains_power",
					Energy: "sensor.mains_energy",
				},
			},
			{
				ID:   "office",
				Name: "Office",
				Members: []types.MemberConfig{
					{ID: "desk", Name: "Desk", SourcePair: types.SourcePair{
						Power:  "sensor.desk_power",
						Energy: "sensor.desk_energy",
					}},
				},
			},
		},
		Tariff: types.Tariff{
			Enabled:        true,
			Currency:       "USD",
			CurrencySymbol: "$",
			RateType:       types.RateTypeTOU,
			FlatRate:       0.12,
			TOURates: []types.TOUPeriod{
				{Name: "peak", Rate: 0.32, StartTime: "16:00", EndTime: "21:00",
					Days: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
				{Name: "off-peak", Rate: 0.10, StartTime: "21:00", EndTime: "16:00"},
			},
		},
		RefreshInterval:     30 * time.Second,
		CostRefreshInterval: 10 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid example config", "error", err)
		os.Exit(1)
	}

	if err := db.SetConfig(ctx, cfg, types.CurrentConfigVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed config", "error", err)
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded example config successfully")
}
