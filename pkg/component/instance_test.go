package component

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/sinks"
)

func tidesDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "Tides",
		RequiredFor: []string{"TIDES"},
		Inputs:      []InputParam{{Name: "tidal_constituents"}},
		Outputs: []OutputParam{
			{Name: "TIDES", Comment: "enable tidal forcing", Sink: Text("mom")},
			{Name: "TIDE_M2", Sink: Text("mom")},
			{Name: "OCN_TIDAL_FORCING", Sink: Registry()},
		},
		Compute: func(_ context.Context, inst *Instance, _ Env) (map[string]engine.Value, error) {
			constituents, err := inst.InputString("tidal_constituents")
			if err != nil {
				return nil, err
			}
			return map[string]engine.Value{
				"TIDES":             true,
				"TIDE_M2":           strings.Contains(constituents, "M2"),
				"OCN_TIDAL_FORCING": "on",
			}, nil
		},
	}
}

func testEnv(t *testing.T) (Env, *sinks.FakeRunner) {
	fake := sinks.NewFakeRunner(nil)
	return Env{CaseDir: t.TempDir(), Runners: sinks.Runners{Local: fake}}, fake
}

func TestInstance_ConfigureWritesEachOutputOnce(t *testing.T) {
	env, fake := testEnv(t)
	inst, err := tidesDescriptor().New(engine.InputBag{"tidal_constituents": "M2,S2"})
	require.NoError(t, err)

	require.NoError(t, inst.Configure(context.Background(), env))
	assert.Equal(t, StateConfigured, inst.State())

	data, err := os.ReadFile(filepath.Join(env.CaseDir, "user_nl_mom"))
	require.NoError(t, err)
	assert.Equal(t, "! tides: TIDES\nTIDES = True\n\n! tides: TIDE_M2\nTIDE_M2 = True\n\n", string(data))

	assert.Equal(t, 1, fake.CountSets("OCN_TIDAL_FORCING"))
	v, _ := fake.Value("OCN_TIDAL_FORCING")
	assert.Equal(t, "on", v)

	out, err := inst.GetOutput("TIDES")
	require.NoError(t, err)
	assert.Equal(t, "True", out)
}

func TestInstance_ConfigureTwiceIsInvalid(t *testing.T) {
	env, _ := testEnv(t)
	inst, err := tidesDescriptor().New(engine.InputBag{"tidal_constituents": "M2"})
	require.NoError(t, err)
	require.NoError(t, inst.Configure(context.Background(), env))

	err = inst.Configure(context.Background(), env)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestInstance_ConfigureMissingOutput(t *testing.T) {
	env, fake := testEnv(t)
	d := tidesDescriptor()
	d.Compute = constCompute(map[string]engine.Value{"TIDES": true})

	inst, err := d.New(engine.InputBag{"tidal_constituents": "M2"})
	require.NoError(t, err)

	err = inst.Configure(context.Background(), env)
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.ErrorKindValidationFailed))
	assert.Equal(t, []string{"OCN_TIDAL_FORCING", "TIDE_M2"}, engine.MissingOf(err)["Tides"])

	_, statErr := os.Stat(filepath.Join(env.CaseDir, "user_nl_mom"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written when compute is incomplete")
	assert.Empty(t, fake.Calls())
}

func TestInstance_ConfigureComputeError(t *testing.T) {
	env, _ := testEnv(t)
	d := tidesDescriptor()
	d.Compute = func(context.Context, *Instance, Env) (map[string]engine.Value, error) {
		return nil, errors.New("boom")
	}
	inst, err := d.New(engine.InputBag{"tidal_constituents": "M2"})
	require.NoError(t, err)

	err = inst.Configure(context.Background(), env)
	assert.True(t, engine.IsKind(err, engine.ErrorKindValidationFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestInstance_NoOutputs(t *testing.T) {
	env, _ := testEnv(t)
	d := &Descriptor{Name: "noop"}
	inst, err := d.New(engine.InputBag{})
	require.NoError(t, err)

	require.NoError(t, inst.Configure(context.Background(), env))
	entry := inst.Serialize()
	assert.Empty(t, entry.Outputs)
	assert.Equal(t, StateSerialized, inst.State())
}

func TestInstance_InspectReadsSinks(t *testing.T) {
	env, _ := testEnv(t)
	inst, err := tidesDescriptor().New(engine.InputBag{"tidal_constituents": "M2"})
	require.NoError(t, err)
	require.NoError(t, inst.Configure(context.Background(), env))

	inspected, err := tidesDescriptor().Inspect(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, StateInspected, inspected.State())

	in, err := inspected.GetInput("tidal_constituents")
	require.NoError(t, err)
	assert.Nil(t, in, "inspected inputs are placeholders")
	assert.True(t, Equal(inst, inspected))

	err = inspected.Configure(context.Background(), env)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestInstance_InspectMissingTextEntry(t *testing.T) {
	env, _ := testEnv(t)

	_, err := tidesDescriptor().Inspect(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrSinkReadNotFound)

	var ce *engine.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Tides", ce.Component)
}

func TestInstance_SerializeRoundTrip(t *testing.T) {
	env, fake := testEnv(t)
	d := tidesDescriptor()
	inst, err := d.New(engine.InputBag{"tidal_constituents": "M2"})
	require.NoError(t, err)
	require.NoError(t, inst.Configure(context.Background(), env))
	callsAfterConfigure := len(fake.Calls())

	entry := inst.Serialize()
	assert.Equal(t, "tides", entry.Name)
	assert.Equal(t, StateSerialized, inst.State())

	restored, err := Deserialize(d, entry)
	require.NoError(t, err)
	assert.Equal(t, StateRestored, restored.State())
	assert.Equal(t, inst.Outputs(), restored.Outputs())
	assert.True(t, Equal(inst, restored))
	assert.Len(t, fake.Calls(), callsAfterConfigure)

	assert.ErrorIs(t, restored.Configure(context.Background(), env), engine.ErrInvalidState)
}

func TestEqual_IgnoresInputs(t *testing.T) {
	d := tidesDescriptor()
	outputs := map[string]engine.Value{"TIDES": "True", "TIDE_M2": "True", "OCN_TIDAL_FORCING": "on"}

	a, err := Deserialize(d, engine.ManifestEntry{Inputs: map[string]engine.Value{"tidal_constituents": "M2"}, Outputs: outputs})
	require.NoError(t, err)
	b, err := Deserialize(d, engine.ManifestEntry{Inputs: map[string]engine.Value{"tidal_constituents": "M2,K1"}, Outputs: outputs})
	require.NoError(t, err)
	assert.True(t, Equal(a, b))

	changed := map[string]engine.Value{"TIDES": "True", "TIDE_M2": "False", "OCN_TIDAL_FORCING": "on"}
	c, err := Deserialize(d, engine.ManifestEntry{Inputs: map[string]engine.Value{"tidal_constituents": "M2"}, Outputs: changed})
	require.NoError(t, err)
	assert.False(t, Equal(a, c))
	assert.Equal(t, []string{"TIDE_M2"}, ChangedOutputs(a, c))

	other := &Descriptor{Name: "other"}
	o, err := other.New(engine.InputBag{})
	require.NoError(t, err)
	assert.False(t, Equal(a, o))
}

func TestInstance_OutputFilepaths(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "runoff.nc"), []byte("x"), 0o644))

	d := &Descriptor{
		Name: "runoff",
		Outputs: []OutputParam{
			{Name: "RUNOFF_FILE", IsFile: true, Sink: Text("mom")},
			{Name: "MISSING_FILE", IsFile: true, Sink: Text("mom")},
			{Name: "RUNOFF_SCALE", Sink: Text("mom")},
		},
		Compute: constCompute(nil),
	}
	inst, err := Deserialize(d, engine.ManifestEntry{
		Inputs: map[string]engine.Value{},
		Outputs: map[string]engine.Value{
			"RUNOFF_FILE":  `"runoff.nc"`,
			"MISSING_FILE": "gone.nc",
			"RUNOFF_SCALE": "1.0",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(base, "runoff.nc")}, inst.OutputFilepaths(base))
}

func TestInstance_TypedAccessors(t *testing.T) {
	d := &Descriptor{Name: "x", Inputs: []InputParam{{Name: "s"}, {Name: "n"}, {Name: "b"}}}
	inst, err := d.New(engine.InputBag{"s": "abc", "n": 3, "b": "true"})
	require.NoError(t, err)

	s, err := inst.InputString("s")
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	n, err := inst.InputFloat("n")
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	b, err := inst.InputBool("b")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = inst.InputFloat("s")
	assert.True(t, engine.IsKind(err, engine.ErrorKindValidationFailed))

	_, err = inst.GetInput("nope")
	assert.Error(t, err)
}
