package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/mod/semver"
)

// manifest is the release document served at the manifest URL.
type manifest struct {
	Version   string              `json:"version"`
	Notes     string              `json:"notes"`
	PubDate   time.Time           `json:"pub_date"`
	Platforms map[string]artifact `json:"platforms"`
}

type artifact struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

const chunkSize = 32 * 1024

// HTTPSource reads a release manifest over HTTP and stages artifacts under
// Dir/<version>/.
type HTTPSource struct {
	httpClient     *http.Client
	fs             afero.Fs
	manifestURL    string
	currentVersion string
	dir            string
	platform       string
}

// SourceOption configures an HTTPSource.
type SourceOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SourceOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

// WithFs replaces the OS filesystem used for staging.
func WithFs(fs afero.Fs) SourceOption {
	return func(s *HTTPSource) { s.fs = fs }
}

// WithPlatform overrides the os-arch key looked up in the manifest.
func WithPlatform(p string) SourceOption {
	return func(s *HTTPSource) { s.platform = p }
}

// NewHTTPSource creates a source for the running version.
func NewHTTPSource(manifestURL, currentVersion, dir string, opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		httpClient:     &http.Client{Timeout: 5 * time.Minute},
		fs:             afero.NewOsFs(),
		manifestURL:    manifestURL,
		currentVersion: currentVersion,
		dir:            dir,
		platform:       runtime.GOOS + "-" + runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check fetches the manifest and returns its release if it is newer than
// the running version.
func (s *HTTPSource) Check(ctx context.Context) (*Metadata, error) {
	current := canonical(s.currentVersion)
	if !semver.IsValid(current) {
		return nil, fmt.Errorf("update: invalid current version %q", s.currentVersion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("update: build manifest request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: fetch manifest: unexpected status code: %d", resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("update: decode manifest: %w", err)
	}
	latest := canonical(m.Version)
	if !semver.IsValid(latest) {
		return nil, fmt.Errorf("update: manifest has invalid version %q", m.Version)
	}
	if semver.Compare(latest, current) <= 0 {
		return nil, nil
	}

	a, ok := m.Platforms[s.platform]
	if !ok || a.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPlatformArtifact, s.platform)
	}
	return &Metadata{
		Version:        strings.TrimPrefix(m.Version, "v"),
		CurrentVersion: strings.TrimPrefix(s.currentVersion, "v"),
		Notes:          m.Notes,
		Date:           m.PubDate,
		URL:            a.URL,
		SHA256:         strings.ToLower(a.SHA256),
	}, nil
}

// DownloadAndInstall streams the artifact into the staging directory,
// verifying its checksum when the manifest provides one. The artifact is
// renamed into place only after it is complete and verified.
func (s *HTTPSource) DownloadAndInstall(ctx context.Context, meta Metadata, onProgress func(Event)) error {
	if onProgress == nil {
		onProgress = func(Event) {}
	}
	stage := filepath.Join(s.dir, meta.Version)
	if err := s.fs.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("update: create staging dir: %w", err)
	}
	final := filepath.Join(stage, artifactName(meta.URL))
	partial := final + ".part"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return fmt.Errorf("update: build download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update: download: unexpected status code: %d", resp.StatusCode)
	}

	f, err := s.fs.Create(partial)
	if err != nil {
		return fmt.Errorf("update: create artifact: %w", err)
	}
	hash := sha256.New()
	onProgress(Event{Kind: EventStarted, ContentLength: max(resp.ContentLength, 0)})

	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				s.fs.Remove(partial)
				return fmt.Errorf("update: write artifact: %w", err)
			}
			hash.Write(buf[:n])
			onProgress(Event{Kind: EventProgress, ChunkLength: int64(n)})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			s.fs.Remove(partial)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("update: read artifact: %w", rerr)
		}
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(partial)
		return fmt.Errorf("update: close artifact: %w", err)
	}

	if meta.SHA256 != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != meta.SHA256 {
			s.fs.Remove(partial)
			return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, meta.SHA256)
		}
	}
	if err := s.fs.Rename(partial, final); err != nil {
		return fmt.Errorf("update: install artifact: %w", err)
	}
	onProgress(Event{Kind: EventFinished})
	return nil
}

// StagedPath returns where the artifact for meta is installed.
func (s *HTTPSource) StagedPath(meta Metadata) string {
	return filepath.Join(s.dir, meta.Version, artifactName(meta.URL))
}

func artifactName(rawURL string) string {
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return "artifact"
	}
	return name
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
