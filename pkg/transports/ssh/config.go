package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the client authenticates.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodKey      AuthMethod = "key"

	// AuthMethodAgent uses the agent listening on SSH_AUTH_SOCK.
	AuthMethodAgent AuthMethod = "agent"
)

// Config describes how to reach the host that owns a remote case.
type Config struct {
	Host string
	Port int
	User string

	// AuthMethod selects password, key or agent auth. Empty picks key when
	// PrivateKeyPath is set and agent otherwise.
	AuthMethod AuthMethod

	Password             string
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// KnownHostsPath is consulted only with StrictHostKeyChecking. Without
	// it any host key is accepted.
	KnownHostsPath        string
	StrictHostKeyChecking bool

	ConnectionTimeout time.Duration

	// CommandTimeout bounds each remote command. Zero leaves only the
	// caller's context.
	CommandTimeout time.Duration

	// KeepAliveInterval of zero disables keep-alive probes. The connection
	// is dropped after MaxKeepAliveRetries consecutive failures.
	KeepAliveInterval   time.Duration
	MaxKeepAliveRetries int
}

// DefaultConfig returns key auth on port 22 with strict host key checking
// against ~/.ssh/known_hosts.
func DefaultConfig(host string, user string) *Config {
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
		CommandTimeout:        5 * time.Minute,
		MaxKeepAliveRetries:   3,
	}
}

func (c *Config) authMethod() AuthMethod {
	if c.AuthMethod != "" {
		return c.AuthMethod
	}
	if c.PrivateKeyPath != "" {
		return AuthMethodKey
	}
	return AuthMethodAgent
}

// defaultKeyNames are tried under ~/.ssh when key auth has no explicit path.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

func defaultKeyPath() string {
	for _, name := range defaultKeyNames {
		p := filepath.Join(os.Getenv("HOME"), ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks the configuration. Key auth without a path picks the first
// default key that exists.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("host is required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	case c.User == "":
		return fmt.Errorf("user is required")
	}

	switch c.authMethod() {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			c.PrivateKeyPath = defaultKeyPath()
		}
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("private key path is required for key authentication and no default key found")
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	case AuthMethodAgent:
		if os.Getenv("SSH_AUTH_SOCK") == "" {
			return fmt.Errorf("agent authentication requires SSH_AUTH_SOCK")
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	switch {
	case c.ConnectionTimeout <= 0:
		return fmt.Errorf("connection timeout must be positive")
	case c.CommandTimeout < 0:
		return fmt.Errorf("command timeout must not be negative")
	case c.StrictHostKeyChecking && c.KnownHostsPath == "":
		return fmt.Errorf("strict host key checking requires a known_hosts path")
	}
	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config. With
// agent authentication the returned closer releases the agent socket; it is
// nil otherwise.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, func() error, error) {
	var (
		auth   []ssh.AuthMethod
		closer func() error
		err    error
	)
	switch c.authMethod() {
	case AuthMethodPassword:
		auth = c.passwordAuth()
	case AuthMethodKey:
		auth, err = c.keyAuth()
	case AuthMethodAgent:
		auth, closer, err = agentAuth()
	default:
		err = fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}
	if err != nil {
		return nil, nil, err
	}

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.ConnectionTimeout,
	}, closer, nil
}

// passwordAuth also answers keyboard-interactive prompts, which many HPC login
// nodes use instead of plain password auth.
func (c *Config) passwordAuth() []ssh.AuthMethod {
	answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = c.Password
		}
		return answers, nil
	}
	return []ssh.AuthMethod{ssh.Password(c.Password), ssh.KeyboardInteractive(answer)}
}

func (c *Config) keyAuth() ([]ssh.AuthMethod, error) {
	pem, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	var signer ssh.Signer
	if c.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(c.PrivateKeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func agentAuth() ([]ssh.AuthMethod, func() error, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, conn.Close, nil
}

func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if !c.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via config
	}
	cb, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
