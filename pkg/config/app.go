package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/caseforge/caseforge/pkg/telemetry"
)

// DefaultConfigFile is looked up in the working directory when no path is
// given.
const DefaultConfigFile = "caseforge.yaml"

// AppConfig is the CLI's configuration file.
type AppConfig struct {
	// CaseDir is the case directory holding user_nl_* files and the registry
	// helper scripts.
	CaseDir string `yaml:"case_dir" validate:"required"`

	// FeatureDescriptor is the default compset when none is given on the
	// command line.
	FeatureDescriptor string `yaml:"feature_descriptor"`

	// ManifestPath is where apply writes and inspect reads the manifest.
	ManifestPath string `yaml:"manifest_path" validate:"required"`

	// DatabasePath is the run history database.
	DatabasePath string `yaml:"database_path" validate:"required"`

	// Inputs are input bag files layered in order.
	Inputs []string `yaml:"inputs" validate:"dive,required"`

	// Policies are Rego files or directories evaluated before apply.
	Policies []string `yaml:"policies" validate:"dive,required"`

	// Components are declarative component definition files or directories.
	Components []string `yaml:"components" validate:"dive,required"`

	// StarlarkTimeout bounds each declarative compute script.
	StarlarkTimeout time.Duration `yaml:"starlark_timeout" validate:"gte=0"`

	Remote    RemoteConfig     `yaml:"remote"`
	Export    ExportConfig     `yaml:"export"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// RemoteConfig selects the SSH host that runs remote registry commands.
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" validate:"required_if=Enabled true"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
	User    string `yaml:"user" validate:"required_if=Enabled true"`

	// AuthMethod is password, key or agent. Empty picks key when a private
	// key path is set and agent otherwise.
	AuthMethod     string `yaml:"auth_method" validate:"omitempty,oneof=password key agent"`
	Password       string `yaml:"password"`
	PrivateKeyPath string `yaml:"private_key_path" validate:"required_if=AuthMethod key"`
	KnownHostsPath string `yaml:"known_hosts_path"`
	StrictHostKey  bool   `yaml:"strict_host_key_checking"`

	// CaseDir is the case directory on the remote host.
	CaseDir string `yaml:"case_dir" validate:"required_if=Enabled true"`

	ConnectionTimeout time.Duration `yaml:"connection_timeout" validate:"gte=0"`
}

// ExportConfig configures where apply output artifacts are copied.
type ExportConfig struct {
	// Target is local or sftp. Empty disables export.
	Target string `yaml:"target" validate:"omitempty,oneof=local sftp"`

	// Dir is the destination directory, local or on the remote host.
	Dir string `yaml:"dir" validate:"required_with=Target"`
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	tel := telemetry.DefaultConfig()
	return &AppConfig{
		CaseDir:         ".",
		ManifestPath:    "caseforge.manifest.json",
		DatabasePath:    filepath.Join(".caseforge", "runs.db"),
		StarlarkTimeout: DefaultStarlarkTimeout,
		Remote: RemoteConfig{
			Port:              22,
			ConnectionTimeout: 30 * time.Second,
		},
		Telemetry: *tel,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadAppConfig reads the configuration at path over the defaults. An empty
// path falls back to DefaultConfigFile, which may be absent. Relative paths in
// the file are taken relative to the file's directory.
func LoadAppConfig(path string) (*AppConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg := DefaultAppConfig()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := ReadAppConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ReadAppConfig decodes and validates a configuration document. Unknown keys
// are rejected.
func ReadAppConfig(r io.Reader) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the telemetry block.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

func (c *AppConfig) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.CaseDir = abs(c.CaseDir)
	c.ManifestPath = abs(c.ManifestPath)
	c.DatabasePath = abs(c.DatabasePath)
	for i := range c.Inputs {
		c.Inputs[i] = abs(c.Inputs[i])
	}
	for i := range c.Policies {
		c.Policies[i] = abs(c.Policies[i])
	}
	for i := range c.Components {
		c.Components[i] = abs(c.Components[i])
	}
	if c.Export.Target == "local" {
		c.Export.Dir = abs(c.Export.Dir)
	}
}
