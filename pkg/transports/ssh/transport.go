// Package ssh runs remote registry commands and uploads exported artifacts
// over SSH and SFTP.
package ssh

import (
	"context"
	"time"
)

// Commander runs a shell command line on the case host. sinks.SSHRunner
// drives xmlchange and xmlquery through it.
type Commander interface {
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// FileMover copies artifacts to and from the case host and verifies them.
type FileMover interface {
	UploadFile(ctx context.Context, localPath, remotePath string, mode uint32) (*FileTransferResult, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) (*FileTransferResult, error)

	// ComputeChecksum returns the hex SHA256 of a remote file.
	ComputeChecksum(ctx context.Context, remotePath string) (string, error)
}

// Transport is a connection to the host that owns a remote case.
type Transport interface {
	Commander
	FileMover

	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// HealthCheck runs a no-op command to prove the connection still works.
	HealthCheck(ctx context.Context) error

	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo describes the current connection.
type ConnectionInfo struct {
	Host         string
	Port         int
	User         string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// FileTransferResult reports one upload or download. Checksum is the SHA256
// of the bytes that crossed the wire.
type FileTransferResult struct {
	BytesTransferred int64
	Duration         time.Duration
	Checksum         string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// TransportError tags a failure with the step that raised it. Temporary
// errors are worth a reconnect; auth errors are not.
type TransportError struct {
	Op          string
	Err         error
	IsTemporary bool
	IsAuthError bool
}

func transient(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, IsTemporary: true}
}

func permanent(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func authFailure(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, IsAuthError: true}
}

func (e *TransportError) Error() string {
	return "ssh " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying after a reconnect may succeed.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
