package telemetry_test

import (
	"context"
	"fmt"

	"github.com/caseforge/caseforge/pkg/telemetry"
)

func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "warn"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	op := telemetry.StartOperation(ctx, "resolve")
	op.End(nil)

	fmt.Println(tel.Metrics.Registry() != nil)
	// Output: true
}
