package components

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/sinks"
)

const marblCompset = "1850_DATM%JRA_SLND_CICE_MOM6%MARBL-BIO_DROF%JRA_SGLC_SWAV"

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("netcdf"), 0o644))
	return p
}

func fullInputs(t *testing.T, caseDir string) engine.InputBag {
	data := t.TempDir()
	return engine.InputBag{
		"case_root":                caseDir,
		"case_ocn_nx":              180,
		"case_ocn_ny":              240,
		"forcing_product":          "JRA",
		"forcing_start_year":       2000,
		"forcing_end_year":         2005,
		"tidal_constituents":       "m2, s2,K1",
		"tidal_reference_date":     "2000-01-01",
		"tpxo_elevation_filepath":  touch(t, data, "h_tpxo9.nc"),
		"tpxo_velocity_filepath":   touch(t, data, "u_tpxo9.nc"),
		"rof_ocn_mapping_filepath": touch(t, data, "map_rof_to_ocn.nc"),
		"rof_smoothing_scale":      1000.0,
		"bgc_ic_filepath":          touch(t, data, "marbl_ic.nc"),
		"river_nutrients_filepath": touch(t, data, "river_nutrients.nc"),
		"cice_grid_filepath":       touch(t, data, "cice_grid.nc"),
	}
}

func newRegistry(t *testing.T, opts Options) (*registry.Registry, component.Env, *sinks.FakeRunner, *sinks.FakeRunner) {
	local, remote := sinks.NewFakeRunner(nil), sinks.NewFakeRunner(nil)
	env := component.Env{CaseDir: t.TempDir(), Runners: sinks.Runners{Local: local, Remote: remote}}
	reg := registry.New(registry.WithEnv(env))
	require.NoError(t, RegisterAll(reg, opts))
	return reg, env, local, remote
}

func TestBuiltins_AreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Builtins(Options{}) {
		require.NoError(t, d.Check(), d.Name)
		assert.False(t, seen[d.Key()], "duplicate %s", d.Key())
		seen[d.Key()] = true
	}
	assert.Len(t, seen, 8)
}

func TestRegisterAll_Twice(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterAll(reg, Options{}))
	err := RegisterAll(reg, Options{})
	assert.ErrorIs(t, err, engine.ErrDuplicateComponent)
}

func TestMarblCase_ResolveAndApply(t *testing.T) {
	reg, env, local, _ := newRegistry(t, Options{})
	ctx := context.Background()

	active, err := reg.Resolve(ctx, marblCompset, fullInputs(t, env.CaseDir))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"case_check", "data_ocean_forcing", "tides", "runoff", "bgc", "bgc_river_nutrients", "cice_ice",
	}, active.Names(), "chlorophyll is forbidden with MARBL")

	m, err := reg.Apply(ctx, active, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, m.Len())

	mom := sinks.NewTextSink(env.CaseDir, "mom")
	v, err := mom.Read("OBC_TIDE_CONSTITUENTS")
	require.NoError(t, err)
	assert.Equal(t, `"M2, S2, K1"`, v)

	v, err = mom.Read("OBC_TIDE_N_CONSTITUENTS")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = mom.Read("OBC_TIDE_REF_DATE")
	require.NoError(t, err)
	assert.Equal(t, "2000, 01, 01", v)

	v, err = sinks.NewTextSink(env.CaseDir, "cice").Read("grid_format")
	require.NoError(t, err)
	assert.Equal(t, "'nc'", v)

	mode, ok := local.Value("DATM_MODE")
	require.True(t, ok)
	assert.Equal(t, "JRA", mode)
	nx, _ := local.Value("ICE_NX")
	assert.Equal(t, "180", nx)
	marbl, _ := local.Value("MARBL_CONFIG")
	assert.Equal(t, "latest", marbl)
}

func TestMarblCase_MissingBGCInputIsFatal(t *testing.T) {
	reg, env, _, _ := newRegistry(t, Options{})
	inputs := fullInputs(t, env.CaseDir)
	delete(inputs, "bgc_ic_filepath")
	delete(inputs, "case_root")

	_, err := reg.Resolve(context.Background(), marblCompset, inputs)
	require.Error(t, err)
	assert.Equal(t, map[string][]string{
		"bgc":        {"bgc_ic_filepath"},
		"case_check": {"case_root"},
	}, engine.MissingOf(err))
}

func TestPhysicsCase_OptionalSkips(t *testing.T) {
	reg, env, _, _ := newRegistry(t, Options{})
	inputs := engine.InputBag{"case_root": env.CaseDir}

	active, err := reg.Resolve(context.Background(), "2000_DATM%JRA_SLND_SICE_MOM6_SROF_SGLC_SWAV", inputs)
	require.NoError(t, err)
	assert.Equal(t, []string{"case_check"}, active.Names())

	var skipped []string
	for _, s := range active.Skipped {
		skipped = append(skipped, s.Component)
	}
	assert.Equal(t, []string{"data_ocean_forcing", "tides", "chlorophyll"}, skipped)
}

func TestRemoteRegistryOption(t *testing.T) {
	reg, env, local, remote := newRegistry(t, Options{RemoteRegistry: true})
	inputs := engine.InputBag{
		"case_root":          env.CaseDir,
		"forcing_product":    "ERA5",
		"forcing_start_year": 1990,
		"forcing_end_year":   1995,
	}

	active, err := reg.Resolve(context.Background(), "DATM_MOM6", inputs)
	require.NoError(t, err)
	_, err = reg.Apply(context.Background(), active, nil)
	require.NoError(t, err)

	assert.Empty(t, local.Calls())
	v, ok := remote.Value("DATM_YR_START")
	require.True(t, ok)
	assert.Equal(t, "1990", v)
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		desc   *component.Descriptor
		inputs engine.InputBag
		param  string
	}{
		{
			name:   "forcing years reversed",
			desc:   DataOceanForcing(component.Registry()),
			inputs: engine.InputBag{"forcing_product": "JRA", "forcing_start_year": 2005, "forcing_end_year": 2000},
			param:  "forcing_end_year",
		},
		{
			name:   "unknown forcing product",
			desc:   DataOceanForcing(component.Registry()),
			inputs: engine.InputBag{"forcing_product": "NCEP", "forcing_start_year": 2000, "forcing_end_year": 2000},
			param:  "forcing_product",
		},
		{
			name: "unknown constituent",
			desc: Tides(),
			inputs: engine.InputBag{
				"tidal_constituents": "M2,Z9", "tidal_reference_date": "2000-01-01",
				"tpxo_elevation_filepath": touch(t, dir, "h.nc"), "tpxo_velocity_filepath": touch(t, dir, "u.nc"),
			},
			param: "tidal_constituents",
		},
		{
			name: "bad reference date",
			desc: Tides(),
			inputs: engine.InputBag{
				"tidal_constituents": "M2", "tidal_reference_date": "01/01/2000",
				"tpxo_elevation_filepath": touch(t, dir, "h2.nc"), "tpxo_velocity_filepath": touch(t, dir, "u2.nc"),
			},
			param: "tidal_reference_date",
		},
		{
			name:   "chlorophyll without variable",
			desc:   Chlorophyll(),
			inputs: engine.InputBag{"chl_filepath": touch(t, dir, "chl.nc"), "chl_variable": ""},
			param:  "chl_variable",
		},
		{
			name:   "negative grid size",
			desc:   CICEIce(component.Registry()),
			inputs: engine.InputBag{"cice_grid_filepath": touch(t, dir, "g.nc"), "case_ocn_nx": -1, "case_ocn_ny": 10},
			param:  "case_ocn_nx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.desc.New(tt.inputs)
			require.Error(t, err)
			assert.True(t, engine.IsKind(err, engine.ErrorKindValidationFailed))
			var ce *engine.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.param, ce.Parameter)
		})
	}
}

func TestCaseCheck_MissingDirectory(t *testing.T) {
	_, err := CaseCheck().New(engine.InputBag{"case_root": filepath.Join(t.TempDir(), "absent")})
	assert.ErrorIs(t, err, engine.ErrFileNotFound)
}

func TestOutputFilepathsForExport(t *testing.T) {
	reg, env, _, _ := newRegistry(t, Options{})
	inputs := fullInputs(t, env.CaseDir)

	active, err := reg.Resolve(context.Background(), marblCompset, inputs)
	require.NoError(t, err)
	_, err = reg.Apply(context.Background(), active, nil)
	require.NoError(t, err)

	paths := active.Get("bgc").OutputFilepaths(env.CaseDir)
	assert.Equal(t, []string{inputs["bgc_ic_filepath"].(string)}, paths)
}
