// Package config loads gitlite's per-user settings from a TOML file.
//
// The file lives at $GITLITE_CONFIG, or at gitlite/config.toml under the
// user config directory ($XDG_CONFIG_HOME or ~/.config on Linux):
//
//	[user]
//	name = "Ada Lovelace"
//	email = "ada@example.com"
//
//	[transfer]
//	timeout = "90s"
//	max_attempts = 3
//	user_agent = "gitlite/0.1"
//
//	[clone]
//	base_cache_size = 256
//
// A missing file yields Defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/odvcencio/gitlite/pkg/remote"
)

// EnvPath overrides the settings file location.
const EnvPath = "GITLITE_CONFIG"

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type User struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type Transfer struct {
	Timeout     Duration `toml:"timeout"`
	MaxAttempts int      `toml:"max_attempts"`
	UserAgent   string   `toml:"user_agent"`
}

type Clone struct {
	BaseCacheSize int `toml:"base_cache_size"`
}

// Settings is the decoded settings file.
type Settings struct {
	User     User     `toml:"user"`
	Transfer Transfer `toml:"transfer"`
	Clone    Clone    `toml:"clone"`

	// Path is the file the settings came from, empty when defaulted.
	Path string `toml:"-"`
}

// Defaults returns the settings used when no file exists.
func Defaults() *Settings {
	return &Settings{
		Transfer: Transfer{
			Timeout:     Duration{60 * time.Second},
			MaxAttempts: 1,
			UserAgent:   remote.DefaultUserAgent,
		},
	}
}

// DefaultPath returns where Load looks for the settings file.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config: %w", err)
	}
	return filepath.Join(dir, "gitlite", "config.toml"), nil
}

// Load reads the settings file at DefaultPath.
func Load() (*Settings, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads settings from path on top of Defaults. A missing file is
// not an error; unknown keys and out-of-range values are.
func LoadFile(path string) (*Settings, error) {
	s := Defaults()
	md, err := toml.DecodeFile(path, s)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Transfer.Timeout.Duration < 0:
		return fmt.Errorf("transfer.timeout must not be negative")
	case s.Transfer.MaxAttempts < 1:
		return fmt.Errorf("transfer.max_attempts must be at least 1")
	case s.Clone.BaseCacheSize < 0:
		return fmt.Errorf("clone.base_cache_size must not be negative")
	}
	return nil
}

// ClientOptions maps the transfer section onto the transfer client.
func (s *Settings) ClientOptions() remote.ClientOptions {
	return remote.ClientOptions{
		Timeout:     s.Transfer.Timeout.Duration,
		MaxAttempts: s.Transfer.MaxAttempts,
		UserAgent:   s.Transfer.UserAgent,
	}
}
