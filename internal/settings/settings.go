// Package settings persists user settings and library view preferences in
// a TOML file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/filter"
)

// FileName is the settings file inside the data directory.
const FileName = "settings.toml"

// Catalog holds the catalog account.
type Catalog struct {
	Token    string `toml:"token,omitempty"`
	UserID   string `toml:"user_id,omitempty"`
	Username string `toml:"username,omitempty"`
}

// Display holds presentation switches.
type Display struct {
	BlurNSFW      bool    `toml:"blur_nsfw"`
	BlurThreshold float64 `toml:"blur_threshold"`
	ShowSpoilers  bool    `toml:"show_spoilers"`
}

// Presence holds the Discord rich presence switches. At most two of the
// buttons are shown, in field order.
type Presence struct {
	Enabled           bool `toml:"enabled"`
	ButtonCatalogPage bool `toml:"button_catalog_page"`
	ButtonProfile     bool `toml:"button_profile"`
	ButtonProject     bool `toml:"button_project"`
}

// Settings is the persisted document.
type Settings struct {
	Catalog  Catalog            `toml:"catalog"`
	Display  Display            `toml:"display"`
	Presence Presence           `toml:"presence"`
	Library  filter.Preferences `toml:"library"`
}

// Defaults returns the settings used before the file exists.
func Defaults() Settings {
	return Settings{
		Display:  Display{BlurThreshold: catalog.DefaultBlurThreshold},
		Presence: Presence{Enabled: true, ButtonCatalogPage: true},
		Library:  filter.DefaultPreferences(),
	}
}

// normalize fills fields an older or hand-edited file may lack.
func (s Settings) normalize() Settings {
	if s.Display.BlurThreshold <= 0 {
		s.Display.BlurThreshold = catalog.DefaultBlurThreshold
	}
	s.Library = s.Library.Normalize()
	s.Catalog.Token = strings.TrimSpace(s.Catalog.Token)
	return s
}

// BlurPolicy returns the image blur policy.
func (s Settings) BlurPolicy() catalog.BlurPolicy {
	return catalog.BlurPolicy{Enabled: s.Display.BlurNSFW, Threshold: s.Display.BlurThreshold}
}

// Load reads settings from path. A missing file yields Defaults.
func Load(fs afero.Fs, path string) (Settings, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: reading %s: %w", path, err)
	}

	s := Defaults()
	if err := toml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return s.normalize(), nil
}

// Save writes settings to path atomically, creating parent directories.
func Save(fs afero.Fs, path string, s Settings) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: creating directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: marshaling: %w", err)
	}

	tmp := path + ".tmp"
	// The file holds the catalog token.
	if err := afero.WriteFile(fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("settings: writing %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("settings: renaming %s: %w", tmp, err)
	}
	return nil
}

// File is a loaded settings file that is saved on every update.
type File struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	settings Settings
}

// Open loads the settings file at path.
func Open(fs afero.Fs, path string) (*File, error) {
	s, err := Load(fs, path)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, path: path, settings: s}, nil
}

// Path returns the file's location.
func (f *File) Path() string { return f.path }

// Get returns a copy of the current settings.
func (f *File) Get() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// Update applies fn to a copy of the settings and saves it. The in-memory
// settings change only if the save succeeds.
func (f *File) Update(fn func(*Settings)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.settings
	fn(&next)
	next = next.normalize()
	if err := Save(f.fs, f.path, next); err != nil {
		return err
	}
	f.settings = next
	return nil
}

// Reload re-reads the file, keeping the current settings on error.
func (f *File) Reload() (Settings, error) {
	s, err := Load(f.fs, f.path)
	if err != nil {
		return f.Get(), err
	}
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	return s, nil
}

// HasToken reports whether a catalog token is configured.
func (f *File) HasToken() bool {
	return f.Get().Catalog.Token != ""
}

// Token returns the catalog token and user id.
func (f *File) Token() (token, userID string) {
	s := f.Get()
	return s.Catalog.Token, s.Catalog.UserID
}
