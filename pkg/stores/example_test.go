package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/stores"
)

// ExampleBeginRun records an apply of one component.
func ExampleBeginRun() {
	ctx := context.Background()
	store, err := stores.Open(ctx, stores.MemoryPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	rec, err := stores.BeginRun(ctx, store, zerolog.Nop(), stores.RunInfo{
		Operation:         "apply",
		FeatureDescriptor: "MOM6",
		CaseDir:           "/cases/panama",
	})
	if err != nil {
		log.Fatal(err)
	}

	rec.ResolveFinished(ctx, "MOM6", []string{"tides"}, nil, nil)
	rec.ComponentApplied(ctx, "tides", time.Millisecond, nil)
	m := engine.NewManifest()
	m.Add(engine.ManifestEntry{Name: "tides"})
	rec.ApplyFinished(ctx, m, nil)

	runs, err := store.ListRuns(ctx, stores.RunFilter{})
	if err != nil {
		log.Fatal(err)
	}
	outcomes, _ := store.ListOutcomes(ctx, runs[0].ID)
	fmt.Println(runs[0].Status, len(outcomes), outcomes[0].Outcome)
	// Output: succeeded 1 configured
}
