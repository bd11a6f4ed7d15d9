package gist

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CollectFiles reads a file or directory tree into a name → content map
// suitable for Upload. Directory structure is kept in the names as slash
// separated relative paths. Unreadable files are skipped with a warning;
// ending up with no files at all is an error.
func CollectFiles(root string) (map[string]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "path does not exist: %s", root)
	}

	files := make(map[string]string)

	if !info.IsDir() {
		content, err := os.ReadFile(root)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", root)
		}
		files[filepath.Base(root)] = string(content)
		return files, nil
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Warnf("Failed to read file %s: %v", path, readErr)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := strings.ReplaceAll(rel, string(os.PathSeparator), "/")
		files[name] = string(content)
		log.Debugln("Added file to gist: ", name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, errors.Errorf("no files found to upload in: %s", root)
	}
	return files, nil
}
