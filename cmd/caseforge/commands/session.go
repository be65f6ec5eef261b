package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/components"
	"github.com/caseforge/caseforge/pkg/config"
	"github.com/caseforge/caseforge/pkg/engine"
	"github.com/caseforge/caseforge/pkg/policy"
	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/sinks"
	"github.com/caseforge/caseforge/pkg/stores"
	"github.com/caseforge/caseforge/pkg/telemetry"
	"github.com/caseforge/caseforge/pkg/transports/ssh"
)

// session holds what a command invocation builds from the configuration.
type session struct {
	cfg    *config.AppConfig
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	out    io.Writer
	json   bool

	remoteMu sync.Mutex
	remote   *ssh.SSHClient
	store    *stores.SQLiteStore
}

func (s *session) open(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.LoadAppConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.caseDir != "" {
		cfg.CaseDir = opts.caseDir
	}
	if opts.databasePath != "" {
		cfg.DatabasePath = opts.databasePath
	}
	if opts.logLevel != "" {
		cfg.Telemetry.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	s.cfg = cfg
	s.tel = tel
	s.logger = tel.Logger.Component("cli")
	s.out = cmd.OutOrStdout()
	s.json = opts.jsonOutput
	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	s.remoteMu.Lock()
	if s.remote != nil {
		errs = append(errs, s.remote.Disconnect())
		s.remote = nil
	}
	s.remoteMu.Unlock()
	if s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	if s.tel != nil {
		errs = append(errs, s.tel.Shutdown(ctx))
		s.tel = nil
	}
	return errors.Join(errs...)
}

// featureDescriptor takes the first argument or the configured default.
func (s *session) featureDescriptor(args []string) (engine.FeatureDescriptor, error) {
	if len(args) > 0 && args[0] != "" {
		return engine.FeatureDescriptor(args[0]), nil
	}
	if s.cfg.FeatureDescriptor != "" {
		return engine.FeatureDescriptor(s.cfg.FeatureDescriptor), nil
	}
	return "", fmt.Errorf("no feature descriptor given and none configured")
}

// inputs layers the configured input files, then files, then NAME=VALUE
// assignments. case_root defaults to the case directory.
func (s *session) inputs(files, assignments []string) (engine.InputBag, error) {
	loader := config.NewInputLoader()
	bag, err := loader.LoadFiles(append(append([]string{}, s.cfg.Inputs...), files...)...)
	if err != nil {
		return nil, err
	}
	set, err := config.ParseAssignments(assignments)
	if err != nil {
		return nil, err
	}
	for k, v := range set {
		bag[k] = v
	}
	if _, ok := bag["case_root"]; !ok {
		bag["case_root"] = s.cfg.CaseDir
	}
	return bag, nil
}

// newRegistry builds a registry over caseDir with the built-in and
// declarative components registered.
func (s *session) newRegistry(caseDir string, observers ...engine.ApplyObserver) (*registry.Registry, error) {
	remote := s.cfg.Remote.Enabled
	env := component.Env{
		CaseDir: caseDir,
		Runners: sinks.Runners{Local: &sinks.ExecRunner{}},
	}
	if remote {
		env.Runners.Remote = &sinks.SSHRunner{Executor: lazyRemote{s}, Dir: s.cfg.Remote.CaseDir}
	}

	observer := engine.Observers{s.tel.Observer()}
	observer = append(observer, observers...)

	reg := registry.New(
		registry.WithEnv(env),
		registry.WithLogger(s.tel.Logger.Component("registry")),
		registry.WithObserver(observer),
	)
	if err := components.RegisterAll(reg, components.Options{RemoteRegistry: remote}); err != nil {
		return nil, err
	}

	if len(s.cfg.Components) > 0 {
		loader := config.NewDefinitionLoader(config.NewStarlarkEvaluator(s.cfg.StarlarkTimeout))
		defs, err := loader.LoadPaths(s.cfg.Components...)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			if err := reg.Register(d); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func (s *session) policyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(s.tel.Logger.Component("policy"))
	if err != nil {
		return nil, err
	}
	if len(s.cfg.Policies) > 0 {
		if err := eng.LoadPolicies(ctx, s.cfg.Policies); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

func (s *session) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := stores.Open(ctx, s.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	s.store = store
	return store, nil
}

// beginRun opens the store and starts a run record.
func (s *session) beginRun(ctx context.Context, operation string, fd engine.FeatureDescriptor) (*stores.RunRecorder, error) {
	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return stores.BeginRun(ctx, store, s.tel.Logger.Component("stores"), stores.RunInfo{
		Operation:         operation,
		FeatureDescriptor: fd,
		CaseDir:           s.cfg.CaseDir,
	})
}

// sshClient connects to the configured remote host on first use.
func (s *session) sshClient(ctx context.Context) (*ssh.SSHClient, error) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	if s.remote != nil {
		return s.remote, nil
	}
	if !s.cfg.Remote.Enabled {
		return nil, fmt.Errorf("remote host is not configured")
	}

	client, err := ssh.NewSSHClient(remoteSSHConfig(s.cfg.Remote), s.tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	s.remote = client
	return client, nil
}

// remoteSSHConfig maps the remote block onto the SSH client settings.
// Registry commands carry no deadline of their own; only the caller's
// context bounds them.
func remoteSSHConfig(rc config.RemoteConfig) *ssh.Config {
	cfg := ssh.DefaultConfig(rc.Host, rc.User)
	if rc.Port != 0 {
		cfg.Port = rc.Port
	}
	cfg.AuthMethod = ssh.AuthMethod(rc.AuthMethod)
	cfg.Password = rc.Password
	cfg.PrivateKeyPath = rc.PrivateKeyPath
	if rc.KnownHostsPath != "" {
		cfg.KnownHostsPath = rc.KnownHostsPath
	}
	cfg.StrictHostKeyChecking = rc.StrictHostKey
	if rc.ConnectionTimeout > 0 {
		cfg.ConnectionTimeout = rc.ConnectionTimeout
	}
	cfg.CommandTimeout = 0
	return cfg
}

// lazyRemote defers the SSH connection until a remote registry command runs.
type lazyRemote struct{ s *session }

func (l lazyRemote) ExecuteCommand(ctx context.Context, cmd string) (string, string, error) {
	client, err := l.s.sshClient(ctx)
	if err != nil {
		return "", "", err
	}
	return client.ExecuteCommand(ctx, cmd)
}
