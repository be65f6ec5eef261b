// Package export copies the file-valued outputs of an applied plan out of the
// case directory.
//
// Paths under the case directory keep their relative layout at the
// destination. Paths outside it are placed by base name. Every copy is
// verified by SHA256: locally by rereading the written file, remotely by
// running sha256sum on the host after the SFTP upload.
//
//	exp := export.New(export.NewLocalTarget("/archive/run42"), logger)
//	results, err := exp.ExportActive(ctx, caseDir, active)
package export
