package stores

import (
	"context"
	"time"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Run is one resolve/apply invocation.
type Run struct {
	ID                string           `json:"id"`
	Operation         string           `json:"operation"`
	FeatureDescriptor string           `json:"feature_descriptor"`
	CaseDir           string           `json:"case_dir"`
	Status            engine.RunStatus `json:"status"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	Error             *string          `json:"error,omitempty"`
	ErrorKind         *string          `json:"error_kind,omitempty"`

	// Manifest is the encoded manifest of a successful apply.
	Manifest *string `json:"manifest,omitempty"`

	// ManifestDigest is the BLAKE3 digest of Manifest.
	ManifestDigest *string `json:"manifest_digest,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComponentOutcome is the result of one component within a run.
type ComponentOutcome struct {
	RunID      string         `json:"run_id"`
	Component  string         `json:"component"`
	Position   int            `json:"position"`
	Outcome    engine.Outcome `json:"outcome"`
	Duration   time.Duration  `json:"duration"`
	Error      *string        `json:"error,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status            engine.RunStatus
	FeatureDescriptor string
	Limit             int
	Offset            int
}

// Store persists run history.
type Store interface {
	// Init opens the database.
	Init(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// RecordOutcome inserts or replaces the outcome of a component.
	RecordOutcome(ctx context.Context, outcome *ComponentOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]*ComponentOutcome, error)

	HealthCheck(ctx context.Context) error
}
