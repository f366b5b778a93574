// Package config resolves which files back a project's stories.
//
// Settings come from a .storyloop.yaml file discovered by walking up from
// the working directory, then from explicit overrides (CLI flags and
// environment variables). The resulting Config implements
// stories.Locator, so the engine never looks at the environment itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/storyloop/internal/stories"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file looked up from the working directory.
	FileName = ".storyloop.yaml"
	// DefaultActive is the active stories file when no tiers are configured.
	DefaultActive = "stories.json"
	// DefaultArchive is the archive file for completed stories.
	DefaultArchive = "stories-archive.json"
	// DefaultDataDir holds the journal database.
	DefaultDataDir = "~/.storyloop"
)

// Config holds the project configuration.
type Config struct {
	Active           string        `yaml:"active"`
	Archive          string        `yaml:"archive"`
	Tiers            []TierConfig  `yaml:"tiers"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Journal          JournalConfig `yaml:"journal"`
	Log              LogConfig     `yaml:"log"`
	Root             string        `yaml:"-"` // relative paths resolve against this directory
}

// TierConfig is one ordered active tier. Path may be a doublestar glob,
// in which case every match becomes a tier, in lexical order.
type TierConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// JournalConfig controls the SQLite lifecycle journal.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Overrides are values supplied on the command line or via environment.
// Empty fields leave the loaded value alone.
type Overrides struct {
	Active   string
	Archive  string
	LogLevel string
	LogFile  string
	DataDir  string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Active:           DefaultActive,
		Archive:          DefaultArchive,
		FailureThreshold: stories.DefaultFailureThreshold,
		Journal:          JournalConfig{DataDir: DefaultDataDir},
		Log:              LogConfig{Level: "info"},
	}
}

// Discover walks up from dir looking for FileName. It returns the path of
// the first one found, or "" when there is none.
func Discover(dir string) string {
	current := dir
	for {
		candidate := filepath.Join(current, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// Load reads configuration from configPath. If configPath is empty or does
// not exist, defaults are returned with paths relative to workDir.
func Load(configPath, workDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Root = workDir

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
			abs, err := filepath.Abs(configPath)
			if err != nil {
				return nil, fmt.Errorf("resolve config path: %w", err)
			}
			cfg.Root = filepath.Dir(abs)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Apply merges overrides into the config. An explicit active file replaces
// any configured tiers. Override paths are relative to workDir, not to the
// config file.
func (c *Config) Apply(o Overrides, workDir string) error {
	if o.Active != "" {
		c.Active = absFrom(workDir, o.Active)
		c.Tiers = nil
	}
	if o.Archive != "" {
		c.Archive = absFrom(workDir, o.Archive)
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
	}
	if o.DataDir != "" {
		c.Journal.DataDir = o.DataDir
	}
	return c.Validate()
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Active == "" {
		c.Active = defaults.Active
	}
	if c.Archive == "" {
		c.Archive = defaults.Archive
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.Journal.DataDir == "" {
		c.Journal.DataDir = defaults.Journal.DataDir
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1")
	}
	if strings.TrimSpace(c.Archive) == "" {
		return fmt.Errorf("archive cannot be empty")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}

	names := make(map[string]bool)
	for i, t := range c.Tiers {
		if strings.TrimSpace(t.Path) == "" {
			return fmt.Errorf("tier %d: path is required", i)
		}
		if isGlob(t.Path) && !doublestar.ValidatePattern(filepath.ToSlash(t.Path)) {
			return fmt.Errorf("tier %d: invalid glob %q", i, t.Path)
		}
		name := t.name(i)
		if names[name] {
			return fmt.Errorf("tier %d: duplicate tier name %q", i, name)
		}
		names[name] = true
	}
	return nil
}

// JournalEnabled reports whether the lifecycle journal should be opened.
func (c *Config) JournalEnabled() bool {
	return c.Journal.Enabled == nil || *c.Journal.Enabled
}

// DataDir returns the journal data directory with ~ expanded.
func (c *Config) DataDir() string {
	return c.resolve(c.Journal.DataDir)
}

// Locate implements stories.Locator. Glob tiers are expanded on every
// call so newly added files are picked up.
func (c *Config) Locate() (stories.Layout, error) {
	layout := stories.Layout{Archive: c.resolve(c.Archive)}

	if len(c.Tiers) == 0 {
		layout.Tiers = []stories.Tier{{Name: "active", Path: c.resolve(c.Active)}}
		return layout, nil
	}

	seen := map[string]bool{filepath.Clean(layout.Archive): true}
	for i, t := range c.Tiers {
		name := t.name(i)
		path := c.resolve(t.Path)

		if !isGlob(t.Path) {
			layout.Tiers = append(layout.Tiers, stories.Tier{Name: name, Path: path})
			seen[filepath.Clean(path)] = true
			continue
		}

		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return stories.Layout{}, fmt.Errorf("expanding tier %q (%s): %w", name, t.Path, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			// A glob may also match the archive or an explicitly listed tier.
			if seen[filepath.Clean(m)] {
				continue
			}
			seen[filepath.Clean(m)] = true
			base := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
			layout.Tiers = append(layout.Tiers, stories.Tier{Name: name + "/" + base, Path: m})
		}
	}
	return layout, nil
}

// GlobDirs returns the fixed base directory of every glob tier, for
// watching. Subdirectories matched by ** are not included.
func (c *Config) GlobDirs() []string {
	var dirs []string
	for _, t := range c.Tiers {
		if !isGlob(t.Path) {
			continue
		}
		base, _ := doublestar.SplitPattern(filepath.ToSlash(c.resolve(t.Path)))
		dirs = append(dirs, filepath.FromSlash(base))
	}
	return dirs
}

// MatchesTier reports whether path would be picked up by a glob tier.
func (c *Config) MatchesTier(path string) bool {
	if filepath.Clean(path) == filepath.Clean(c.resolve(c.Archive)) {
		return false
	}
	for _, t := range c.Tiers {
		if !isGlob(t.Path) {
			continue
		}
		if ok, _ := doublestar.PathMatch(c.resolve(t.Path), path); ok {
			return true
		}
	}
	return false
}

func (t TierConfig) name(i int) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("tier-%d", i+1)
}

// resolve expands ~ and makes p absolute against the config root.
func (c *Config) resolve(p string) string {
	return absFrom(c.Root, p)
}

func absFrom(root, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) || root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
