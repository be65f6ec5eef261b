package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/pkg/engine"
)

func TestRegistrySink_SetAndQuery(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeRunner(nil)
	sink := &RegistrySink{Dir: "/cases/a", Runner: fake}

	require.NoError(t, sink.Set(ctx, "ROF_NCPL", "48"))

	v, err := sink.Query(ctx, "ROF_NCPL")
	require.NoError(t, err)
	assert.Equal(t, "48", v)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Dir: "/cases/a", Name: "./xmlchange", Args: []string{"ROF_NCPL=48"}}, calls[0])
	assert.Equal(t, []string{"ROF_NCPL", "--value"}, calls[1].Args)
}

func TestRegistrySink_RemoveUnsupported(t *testing.T) {
	sink := &RegistrySink{Dir: "/cases/a", Runner: NewFakeRunner(nil)}

	err := sink.Remove(context.Background(), "ROF_NCPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnsupportedOperation)
}

func TestRegistrySink_QueryUnknown(t *testing.T) {
	sink := &RegistrySink{Runner: NewFakeRunner(nil)}

	_, err := sink.Query(context.Background(), "NOPE")
	assert.True(t, engine.IsKind(err, engine.ErrorKindSinkFailure))
}

func TestRegistrySink_RunnerFailure(t *testing.T) {
	fake := NewFakeRunner(nil)
	boom := errors.New("boom")
	fake.Fail["RUN_TYPE"] = boom
	sink := &RegistrySink{Runner: fake}

	err := sink.Set(context.Background(), "RUN_TYPE", "startup")
	assert.ErrorIs(t, err, boom)
	assert.True(t, engine.IsKind(err, engine.ErrorKindSinkFailure))
}

func TestRegistrySink_NoRunner(t *testing.T) {
	sink := &RegistrySink{Remote: true}

	err := sink.Set(context.Background(), "A", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote command runner")
}

func TestRunners_For(t *testing.T) {
	local, remote := NewFakeRunner(nil), NewFakeRunner(nil)
	r := Runners{Local: local, Remote: remote}

	assert.Same(t, local, r.For(false))
	assert.Same(t, remote, r.For(true))
	assert.Nil(t, Runners{}.For(true))
}
