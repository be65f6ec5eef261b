package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// UploadFile uploads a single file to the remote host via SFTP, creating the
// remote directory. A zero mode leaves the server default.
func (c *SSHClient) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error) {
	result := &FileTransferResult{StartedAt: time.Now()}

	localFile, err := os.Open(localPath)
	if err != nil {
		return nil, permanent("upload", fmt.Errorf("failed to open local file: %w", err))
	}
	defer localFile.Close()

	sftpClient, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return nil, permanent("upload", fmt.Errorf("failed to create remote directory: %w", err))
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return nil, transient("upload", fmt.Errorf("failed to create remote file: %w", err))
	}
	defer remoteFile.Close()

	hash := sha256.New()
	written, err := copyWithContext(ctx, io.MultiWriter(remoteFile, hash), localFile)
	if err != nil {
		return nil, transient("upload", fmt.Errorf("failed to copy file: %w", err))
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			c.logger.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file permissions")
		}
	}

	result.BytesTransferred = written
	result.Checksum = hex.EncodeToString(hash.Sum(nil))
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	c.logger.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("file uploaded")

	return result, nil
}

// DownloadFile downloads a single file from the remote host via SFTP.
func (c *SSHClient) DownloadFile(ctx context.Context, remotePath string, localPath string) (*FileTransferResult, error) {
	result := &FileTransferResult{StartedAt: time.Now()}

	sftpClient, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, permanent("download", fmt.Errorf("failed to open remote file: %w", err))
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, permanent("download", fmt.Errorf("failed to create local directory: %w", err))
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return nil, permanent("download", fmt.Errorf("failed to create local file: %w", err))
	}
	defer localFile.Close()

	hash := sha256.New()
	written, err := copyWithContext(ctx, io.MultiWriter(localFile, hash), remoteFile)
	if err != nil {
		return nil, transient("download", fmt.Errorf("failed to copy file: %w", err))
	}

	result.BytesTransferred = written
	result.Checksum = hex.EncodeToString(hash.Sum(nil))
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	c.logger.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("file downloaded")

	return result, nil
}

// ComputeChecksum calculates the SHA256 checksum of a remote file with
// sha256sum.
func (c *SSHClient) ComputeChecksum(ctx context.Context, remotePath string) (string, error) {
	stdout, stderr, err := c.ExecuteCommand(ctx, "sha256sum "+shellQuote(remotePath))
	if err != nil {
		return "", permanent("checksum", fmt.Errorf("failed to compute checksum: %w (stderr: %s)", err, stderr))
	}

	// Output is "checksum  filename".
	fields := strings.Fields(stdout)
	if len(fields) == 0 || len(fields[0]) != sha256.Size*2 {
		return "", permanent("checksum", fmt.Errorf("invalid checksum output: %q", stdout))
	}

	return fields[0], nil
}

// LocalChecksum calculates the SHA256 checksum of a local file.
func LocalChecksum(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (c *SSHClient) sftpClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, transient("sftp-init", fmt.Errorf("failed to create SFTP client: %w", err))
	}

	return client, nil
}

// copyWithContext copies src to dst, checking ctx between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
