package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/drivesync/drivesync/internal/glob"
	"github.com/drivesync/drivesync/internal/utils"
)

const DefaultConfigFile = ".drive-sync.yml"

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrConfigExists   = errors.New("configuration file already exists")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// ExampleConfig is written by `drive-sync init`.
const ExampleConfig = `sync:
  - drive_folder_id: "YOUR_DRIVE_FOLDER_ID"
    github_folder: "docs"
    # Optional: exclude folders/files using glob patterns
    # exclude_folders:
    #   - "Archive"
    # exclude_files:
    #   - "DRAFT*"
`

// Target maps one remote folder to one local directory.
type Target struct {
	DriveFolderID  string   `mapstructure:"drive_folder_id"`
	GithubFolder   string   `mapstructure:"github_folder"`
	ExcludeFolders []string `mapstructure:"exclude_folders"`
	ExcludeFiles   []string `mapstructure:"exclude_files"`
}

// Key identifies the target in the manifest. It is the cleaned local root,
// so pointing a folder at a different drive id replaces its content.
func (t Target) Key() string {
	return path.Clean(filepath.ToSlash(t.GithubFolder))
}

func (t Target) String() string {
	return fmt.Sprintf("%s -> %s", t.DriveFolderID, t.Key())
}

func (t Target) validate(i int) error {
	if strings.TrimSpace(t.DriveFolderID) == "" {
		return fmt.Errorf("%w: sync entry %d missing 'drive_folder_id'", ErrConfigInvalid, i)
	}
	if strings.TrimSpace(t.GithubFolder) == "" {
		return fmt.Errorf("%w: sync entry %d missing 'github_folder'", ErrConfigInvalid, i)
	}
	key := t.Key()
	if path.IsAbs(key) || filepath.IsAbs(t.GithubFolder) || key == ".." || strings.HasPrefix(key, "../") {
		return fmt.Errorf("%w: sync entry %d 'github_folder' must be a path inside the repository", ErrConfigInvalid, i)
	}
	if err := glob.Validate(t.ExcludeFolders); err != nil {
		return fmt.Errorf("%w: sync entry %d 'exclude_folders': %v", ErrConfigInvalid, i, err)
	}
	if err := glob.Validate(t.ExcludeFiles); err != nil {
		return fmt.Errorf("%w: sync entry %d 'exclude_files': %v", ErrConfigInvalid, i, err)
	}
	return nil
}

// Config is loaded once at start up and never mutated afterwards.
type Config struct {
	Sync []Target `mapstructure:"sync"`
	Path string   `mapstructure:"-"`
}

func (c *Config) Validate() error {
	if len(c.Sync) == 0 {
		return fmt.Errorf("%w: 'sync' must list at least one entry", ErrConfigInvalid)
	}
	seen := make(map[string]int, len(c.Sync))
	for i, t := range c.Sync {
		if err := t.validate(i); err != nil {
			return err
		}
		if j, dup := seen[t.Key()]; dup {
			return fmt.Errorf("%w: sync entries %d and %d both write to %q", ErrConfigInvalid, j, i, t.Key())
		}
		seen[t.Key()] = i
	}
	for i, a := range c.Sync {
		for j, b := range c.Sync {
			if i != j && contains(a.Key(), b.Key()) {
				return fmt.Errorf("%w: sync entry %d (%s) is nested inside entry %d (%s)", ErrConfigInvalid, j, b.Key(), i, a.Key())
			}
		}
	}
	return nil
}

// contains reports whether child is strictly below parent. Nested targets
// would see each other's files as orphans.
func contains(parent, child string) bool {
	if parent == child {
		return false
	}
	return parent == "." || strings.HasPrefix(child, parent+"/")
}

// Load reads and validates a YAML config file. Unknown keys are errors.
func Load(configPath string) (*Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfigInvalid, configPath, err)
	}

	if len(v.AllKeys()) == 0 {
		return nil, fmt.Errorf("%w: configuration file is empty", ErrConfigInvalid)
	}
	if !v.IsSet("sync") {
		return nil, fmt.Errorf("%w: configuration must contain a 'sync' key", ErrConfigInvalid)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.Path = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteExample creates a starter config and refuses to overwrite one.
func WriteExample(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, configPath)
	}
	if err := utils.EnsureParent(configPath); err != nil {
		return err
	}
	return os.WriteFile(configPath, []byte(ExampleConfig), 0o644)
}
