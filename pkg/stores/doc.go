// Package stores keeps the run history of caseforge in SQLite.
//
// Every apply creates a run record (UUID id, operation, feature descriptor,
// case directory, status) and one outcome row per component: configured,
// failed, not_attempted or skipped. Successful runs also store the encoded
// manifest and its BLAKE3 digest, so two runs can be compared without
// re-reading the case.
//
// The schema is managed by golang-migrate from embedded SQL files and the
// database is opened through the pure-Go modernc.org/sqlite driver.
//
// RunRecorder adapts a Store to engine.ApplyObserver:
//
//	store, err := stores.Open(ctx, cfg.DatabasePath)
//	rec, err := stores.BeginRun(ctx, store, logger, stores.RunInfo{
//	    Operation:         "apply",
//	    FeatureDescriptor: fd,
//	    CaseDir:           cfg.CaseDir,
//	})
//	reg := registry.New(registry.WithObserver(engine.Observers{tel.Observer(), rec}))
package stores
