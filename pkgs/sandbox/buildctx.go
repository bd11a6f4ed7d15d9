package sandbox

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tarDirectory packs dir into an in-memory tar stream suitable as a docker
// build context. Paths inside the archive are relative to dir.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Only regular files go into the archive; a symlink or device node
		// would produce a header its copied bytes do not match.
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = strings.ReplaceAll(rel, string(os.PathSeparator), "/")

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// findDockerfile returns the directory holding the build's Dockerfile:
// payloadDir itself when it has one at the top level, otherwise the first
// directory found to contain one anywhere under the payload.
func findDockerfile(payloadDir string) (string, bool) {
	if _, err := os.Stat(filepath.Join(payloadDir, "Dockerfile")); err == nil {
		return payloadDir, true
	}

	var found string
	filepath.Walk(payloadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && info.Name() == "Dockerfile" {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}
