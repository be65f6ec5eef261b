package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caseforge/caseforge/pkg/registry"
	"github.com/caseforge/caseforge/pkg/transports/ssh"
)

// ErrChecksumMismatch is returned when a copied file does not hash to the
// source's checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Result describes one exported file.
type Result struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Bytes       int64         `json:"bytes"`
	Checksum    string        `json:"sha256"`
	Duration    time.Duration `json:"duration_ns"`
}

// Target receives exported files. rel is a slash-separated path relative to
// the target root.
type Target interface {
	Name() string
	Put(ctx context.Context, source, rel string) (*Result, error)
}

// Exporter copies artifacts to a Target.
type Exporter struct {
	target Target
	logger zerolog.Logger
}

// New returns an Exporter writing to target.
func New(target Target, logger zerolog.Logger) *Exporter {
	return &Exporter{
		target: target,
		logger: logger.With().Str("subsystem", "export").Str("target", target.Name()).Logger(),
	}
}

// ExportActive exports every existing file-valued output of active.
func (e *Exporter) ExportActive(ctx context.Context, caseDir string, active *registry.Active) ([]Result, error) {
	return e.Export(ctx, caseDir, active.OutputFilepaths(caseDir))
}

// Export copies paths in order and stops at the first failure. Results for
// the files already copied are returned with the error.
func (e *Exporter) Export(ctx context.Context, baseDir string, paths []string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	seen := make(map[string]string, len(paths))

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		rel := relativeName(baseDir, p)
		if prev, ok := seen[rel]; ok {
			if prev == p {
				continue
			}
			return results, fmt.Errorf("export: %s and %s both map to %s", prev, p, rel)
		}
		seen[rel] = p

		res, err := e.target.Put(ctx, p, rel)
		if err != nil {
			e.logger.Error().Err(err).Str("file", p).Msg("export failed")
			return results, fmt.Errorf("export %s: %w", p, err)
		}
		e.logger.Info().
			Str("file", p).
			Str("destination", res.Destination).
			Int64("bytes", res.Bytes).
			Dur("duration", res.Duration).
			Msg("artifact exported")
		results = append(results, *res)
	}

	return results, nil
}

func relativeName(baseDir, p string) string {
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, p); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(p)
}

// LocalTarget copies files under a local directory.
type LocalTarget struct {
	Dir string
}

// NewLocalTarget returns a LocalTarget rooted at dir.
func NewLocalTarget(dir string) *LocalTarget {
	return &LocalTarget{Dir: dir}
}

func (t *LocalTarget) Name() string { return "local:" + t.Dir }

// Put copies source to Dir/rel, preserving the source's permission bits.
func (t *LocalTarget) Put(ctx context.Context, source, rel string) (*Result, error) {
	start := time.Now()
	dest := filepath.Join(t.Dir, filepath.FromSlash(rel))

	src, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	n, err := copyContext(ctx, io.MultiWriter(tmp, hash), src)
	if err == nil {
		err = tmp.Chmod(info.Mode().Perm())
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	sum := hex.EncodeToString(hash.Sum(nil))

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, err
	}

	written, err := ssh.LocalChecksum(dest)
	if err != nil {
		return nil, err
	}
	if written != sum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, dest)
	}

	return &Result{
		Source:      source,
		Destination: dest,
		Bytes:       n,
		Checksum:    sum,
		Duration:    time.Since(start),
	}, nil
}

// Uploader is the part of ssh.FileMover used by SFTPTarget.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, remotePath string, mode uint32) (*ssh.FileTransferResult, error)
	ComputeChecksum(ctx context.Context, remotePath string) (string, error)
}

// SFTPTarget uploads files under a directory on a remote host.
type SFTPTarget struct {
	Client Uploader
	Dir    string
}

// NewSFTPTarget returns an SFTPTarget rooted at the remote dir.
func NewSFTPTarget(client Uploader, dir string) *SFTPTarget {
	return &SFTPTarget{Client: client, Dir: dir}
}

func (t *SFTPTarget) Name() string { return "sftp:" + t.Dir }

// Put uploads source to Dir/rel and checks the remote sha256sum against the
// bytes sent.
func (t *SFTPTarget) Put(ctx context.Context, source, rel string) (*Result, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}

	dest := path.Join(t.Dir, rel)
	up, err := t.Client.UploadFile(ctx, source, dest, uint32(info.Mode().Perm()))
	if err != nil {
		return nil, err
	}

	remote, err := t.Client.ComputeChecksum(ctx, dest)
	if err != nil {
		return nil, err
	}
	if remote != up.Checksum {
		return nil, fmt.Errorf("%w: %s (sent %s, remote %s)", ErrChecksumMismatch, dest, up.Checksum, remote)
	}

	return &Result{
		Source:      source,
		Destination: dest,
		Bytes:       up.BytesTransferred,
		Checksum:    remote,
		Duration:    up.Duration,
	}, nil
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
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
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
