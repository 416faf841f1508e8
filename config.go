package imapsync

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Account describes one remote mailbox to synchronize.
type Account struct {
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	UseOAuth2 bool   `yaml:"use_oauth2"`

	// BestEffort keeps a run going after a folder-level failure instead
	// of aborting on the first one. The run still reports the failure.
	BestEffort bool `yaml:"best_effort"`

	// FlagRule decides flag precedence when both sides changed a message:
	// "server-wins" (default) or "local-wins".
	FlagRule string `yaml:"flag_rule"`

	// DeleteRule decides which side's deletions propagate: "pull"
	// (default, remote deletions remove local copies) or "push" (local
	// deletions are flagged on the server).
	DeleteRule string `yaml:"delete_rule"`

	// FolderMap overrides the automatic path translation, keyed by the
	// remote mailbox name. An empty value excludes the folder from
	// synchronization entirely.
	FolderMap map[string]string `yaml:"folder_map"`

	// Schedule is an optional cron expression for periodic runs.
	Schedule string `yaml:"schedule"`
}

func (a *Account) validate() error {
	if a.Host == "" {
		return &ConfigError{Field: "host", Msg: "must not be empty"}
	}
	if a.Port <= 0 || a.Port > 65535 {
		return &ConfigError{Field: "port", Msg: fmt.Sprintf("%d is out of range", a.Port)}
	}
	if a.Username == "" {
		return &ConfigError{Field: "username", Msg: "must not be empty"}
	}
	if a.Password == "" {
		return &ConfigError{Field: "password", Msg: "must not be empty"}
	}
	switch a.FlagRule {
	case "", "server-wins", "local-wins":
	default:
		return &ConfigError{Field: "flag_rule", Msg: fmt.Sprintf("unknown rule %q", a.FlagRule)}
	}
	switch a.DeleteRule {
	case "", "pull", "push":
	default:
		return &ConfigError{Field: "delete_rule", Msg: fmt.Sprintf("unknown rule %q", a.DeleteRule)}
	}
	seen := make(map[string]string, len(a.FolderMap))
	for remote, local := range a.FolderMap {
		if local == "" {
			continue
		}
		if prev, ok := seen[local]; ok && prev != remote {
			return &ConfigError{Field: "folder_map", Msg: fmt.Sprintf("both %q and %q map to %q", prev, remote, local)}
		}
		seen[local] = remote
	}
	return nil
}

func (a *Account) flagPolicy() FlagPolicy {
	if a.FlagRule == "local-wins" {
		return LocalWins
	}
	return ServerWins
}

func (a *Account) pushDeletes() bool { return a.DeleteRule == "push" }

// label returns the account's display name for logs.
func (a *Account) label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

// Config is the on-disk configuration: the tracker database location and
// the accounts to synchronize.
type Config struct {
	TrackerDB string    `yaml:"tracker_db"`
	Accounts  []Account `yaml:"accounts"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read config file")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse config file")
	}
	if len(cfg.Accounts) == 0 {
		return nil, &ConfigError{Field: "accounts", Msg: "at least one account is required"}
	}
	for i := range cfg.Accounts {
		if err := cfg.Accounts[i].validate(); err != nil {
			return nil, pkgerrors.Wrapf(err, "account %q", cfg.Accounts[i].label())
		}
	}
	return &cfg, nil
}
