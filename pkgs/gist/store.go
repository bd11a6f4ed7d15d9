package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrUpload marks a failed payload upload.
	ErrUpload = errors.New("gist upload failed")

	// ErrDownload marks a failed payload download. A partial download (some
	// files fetched, one failed) is still ErrDownload: partial payloads are
	// never usable input for a sandbox build.
	ErrDownload = errors.New("gist download failed")
)

// Store uploads and downloads agent payload bundles through the gist API.
type Store struct {
	apiURL  string
	token   string
	dataDir string
	client  *http.Client
}

func NewStore(apiURL, token, dataDir string, timeout time.Duration) *Store {
	return &Store{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		token:   token,
		dataDir: dataDir,
		client:  &http.Client{Timeout: timeout},
	}
}

type fileEntry struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

type gistManifest struct {
	HTMLURL string               `json:"html_url"`
	Files   map[string]fileEntry `json:"files"`
}

type uploadContent struct {
	Content string `json:"content"`
}

type uploadRequest struct {
	Description string                   `json:"description"`
	Public      bool                     `json:"public"`
	Files       map[string]uploadContent `json:"files"`
}

// Upload publishes the named files as a private gist and returns its locator.
// An empty file set fails locally before any network call.
func (s *Store) Upload(ctx context.Context, files map[string]string) (string, error) {
	if len(files) == 0 {
		return "", errors.Wrap(ErrUpload, "no files to upload")
	}

	body := uploadRequest{
		Description: "Agent code",
		Public:      false,
		Files:       make(map[string]uploadContent, len(files)),
	}
	for name, content := range files {
		body.Files[name] = uploadContent{Content: content}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(ErrUpload, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/gists", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(ErrUpload, err.Error())
	}
	s.setHeaders(req)

	log.Infof("Uploading %d file(s) to gist...", len(files))
	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrUpload, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.Wrapf(ErrUpload, "status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var created gistManifest
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.Wrap(ErrUpload, err.Error())
	}
	if created.HTMLURL == "" {
		return "", errors.Wrap(ErrUpload, "response missing html_url")
	}

	log.Infoln("Created gist: ", created.HTMLURL)
	return created.HTMLURL, nil
}

// Download materializes the bundle behind locator under dataDir/subdir and
// returns the directory path. Manifest entries whose inline content is marked
// truncated (or absent) are refetched from their raw address. Directory
// structure embedded in file names is preserved on disk. The operation is
// all-or-nothing: on any failure the partial tree is removed.
func (s *Store) Download(ctx context.Context, locator, subdir string) (string, error) {
	id, err := ID(locator)
	if err != nil {
		return "", errors.Wrap(ErrDownload, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/gists/"+id, nil)
	if err != nil {
		return "", errors.Wrap(ErrDownload, err.Error())
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrDownload, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrDownload, "manifest fetch status %d", resp.StatusCode)
	}

	var manifest gistManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return "", errors.Wrap(ErrDownload, err.Error())
	}
	if len(manifest.Files) == 0 {
		return "", errors.Wrap(ErrDownload, "manifest contains no files")
	}

	dir := filepath.Join(s.dataDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(ErrDownload, err.Error())
	}

	if err := s.writeFiles(ctx, dir, manifest.Files); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Errorln("Failed to remove partial download: ", rmErr)
		}
		return "", err
	}

	log.Debugf("Downloaded %d file(s) to %s", len(manifest.Files), dir)
	return dir, nil
}

func (s *Store) writeFiles(ctx context.Context, dir string, files map[string]fileEntry) error {
	for name, entry := range files {
		content := entry.Content
		if entry.Truncated || content == "" {
			if entry.RawURL == "" {
				return errors.Wrapf(ErrDownload, "file %s has no inline content and no raw address", name)
			}
			fetched, err := s.fetchRaw(ctx, entry.RawURL)
			if err != nil {
				return errors.Wrapf(ErrDownload, "fetching %s: %v", name, err)
			}
			content = fetched
		}

		path := filepath.Join(dir, filepath.FromSlash(name))
		// File names come from an untrusted manifest; anything resolving
		// outside the bundle directory is rejected.
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return errors.Wrapf(ErrDownload, "file %s escapes the bundle directory", name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrap(ErrDownload, err.Error())
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return errors.Wrap(ErrDownload, err.Error())
		}
	}
	return nil
}

func (s *Store) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("raw fetch status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *Store) setHeaders(req *http.Request) {
	if s.token != "" {
		scheme := "Bearer"
		if strings.HasPrefix(s.token, "ghp_") || strings.HasPrefix(s.token, "github_pat_") {
			scheme = "token"
		}
		req.Header.Set("Authorization", scheme+" "+s.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "vericore-agent-node")
}
