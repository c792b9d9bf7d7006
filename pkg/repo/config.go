package repo

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the repository's .git/config file in Git's INI dialect.
// Subsections are addressed as `remote "origin"`.
type Config struct {
	path string
	file *ini.File
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GitDir, "config")
}

// ReadConfig reads .git/config. Missing config returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	file, err := ini.LooseLoad(r.configPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &Config{path: r.configPath(), file: file}, nil
}

func subsection(section, name string) string {
	return section + ` "` + name + `"`
}

// Get returns section.key, or "" when unset.
func (c *Config) Get(section, key string) string {
	sec, err := c.file.GetSection(section)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(sec.Key(key).String())
}

// Set assigns section.key.
func (c *Config) Set(section, key, value string) {
	c.file.Section(section).Key(key).SetValue(value)
}

// User returns user.name and user.email.
func (c *Config) User() (name, email string) {
	return c.Get("user", "name"), c.Get("user", "email")
}

// RemoteURL returns remote.<name>.url.
func (c *Config) RemoteURL(name string) (string, bool) {
	u := c.Get(subsection("remote", name), "url")
	return u, u != ""
}

// SetRemote stores a named remote with the default fetch refspec.
func (c *Config) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote %q: URL is required", name)
	}
	sec := subsection("remote", name)
	c.Set(sec, "url", remoteURL)
	c.Set(sec, "fetch", "+refs/heads/*:refs/remotes/"+name+"/*")
	return nil
}

// SetUpstream records that branch tracks the same-named branch on remote.
func (c *Config) SetUpstream(branch, remoteName string) {
	sec := subsection("branch", branch)
	c.Set(sec, "remote", remoteName)
	c.Set(sec, "merge", "refs/heads/"+branch)
}

// Save atomically writes the config back to .git/config.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if _, err := c.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := writeFileAtomic(c.path, buf.Bytes()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (r *Repo) writeDefaultConfig() error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Set("core", "repositoryformatversion", "0")
	cfg.Set("core", "filemode", "true")
	cfg.Set("core", "bare", "false")
	return cfg.Save()
}
