package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return keyPath
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("hpc.example.org", "modeler")

	if config.Host != "hpc.example.org" || config.User != "modeler" {
		t.Errorf("unexpected host/user: %s/%s", config.Host, config.User)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("expected auth method 'key', got '%s'", config.AuthMethod)
	}
	if !config.StrictHostKeyChecking {
		t.Error("expected strict host key checking by default")
	}
	if config.ConnectionTimeout != 30*time.Second {
		t.Errorf("expected connection timeout 30s, got %v", config.ConnectionTimeout)
	}
	if config.Address() != "hpc.example.org:22" {
		t.Errorf("unexpected address %s", config.Address())
	}
}

func TestConfigValidation(t *testing.T) {
	keyPath := writeTestKey(t)

	tests := []struct {
		name       string
		modifyFunc func(*Config)
		errorMsg   string
	}{
		{
			name: "valid password config",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
		},
		{
			name: "valid key config",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
			},
		},
		{
			name: "auto picks key when path set",
			modifyFunc: func(c *Config) {
				c.AuthMethod = ""
				c.PrivateKeyPath = keyPath
			},
		},
		{
			name:       "missing host",
			modifyFunc: func(c *Config) { c.Host = "" },
			errorMsg:   "host is required",
		},
		{
			name:       "missing user",
			modifyFunc: func(c *Config) { c.User = "" },
			errorMsg:   "user is required",
		},
		{
			name:       "invalid port",
			modifyFunc: func(c *Config) { c.Port = 70000 },
			errorMsg:   "invalid port",
		},
		{
			name: "password without password",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
			},
			errorMsg: "password is required",
		},
		{
			name: "missing key file",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = filepath.Join(t.TempDir(), "absent")
			},
			errorMsg: "private key file not found",
		},
		{
			name: "agent without socket",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodAgent
			},
			errorMsg: "SSH_AUTH_SOCK",
		},
		{
			name: "unknown auth method",
			modifyFunc: func(c *Config) {
				c.AuthMethod = "kerberos"
			},
			errorMsg: "unsupported auth method",
		},
		{
			name: "zero connection timeout",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.ConnectionTimeout = 0
			},
			errorMsg: "connection timeout must be positive",
		},
		{
			name: "strict without known hosts",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.KnownHostsPath = ""
			},
			errorMsg: "known_hosts",
		},
	}

	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("example.com", "testuser")
			tt.modifyFunc(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestBuildSSHClientConfig(t *testing.T) {
	t.Run("password authentication", func(t *testing.T) {
		config := DefaultConfig("example.com", "testuser")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.StrictHostKeyChecking = false

		clientConfig, closer, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if closer != nil {
			t.Error("password auth should not return a closer")
		}
		if clientConfig.User != "testuser" {
			t.Errorf("expected user 'testuser', got %q", clientConfig.User)
		}
		// password plus keyboard-interactive
		if len(clientConfig.Auth) != 2 {
			t.Errorf("expected 2 auth methods, got %d", len(clientConfig.Auth))
		}
	})

	t.Run("key authentication", func(t *testing.T) {
		config := DefaultConfig("example.com", "testuser")
		config.PrivateKeyPath = writeTestKey(t)
		config.StrictHostKeyChecking = false

		clientConfig, _, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(clientConfig.Auth) != 1 {
			t.Errorf("expected 1 auth method, got %d", len(clientConfig.Auth))
		}
		if clientConfig.Timeout != config.ConnectionTimeout {
			t.Errorf("expected timeout %v, got %v", config.ConnectionTimeout, clientConfig.Timeout)
		}
	})

	t.Run("corrupt key", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "bad")
		if err := os.WriteFile(keyPath, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		config := DefaultConfig("example.com", "testuser")
		config.PrivateKeyPath = keyPath
		config.StrictHostKeyChecking = false

		if _, _, err := config.BuildSSHClientConfig(); err == nil {
			t.Fatal("expected parse error")
		}
	})

	t.Run("missing known hosts", func(t *testing.T) {
		config := DefaultConfig("example.com", "testuser")
		config.PrivateKeyPath = writeTestKey(t)
		config.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")

		if _, _, err := config.BuildSSHClientConfig(); err == nil {
			t.Fatal("expected known_hosts error")
		}
	})
}
