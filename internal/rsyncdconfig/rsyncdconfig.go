// Package rsyncdconfig loads the daemon's module and listener
// configuration from a TOML file, the "configuration file loading"
// external collaborator named alongside command-line parsing: the core
// transfer engine never imports this package, only cmd/gokr-rsyncd and
// internal/maincmd do.
package rsyncdconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/oferchen/rsync-sub026/rsyncd"
)

// AuthorizedSSH configures an SSH listener that authenticates connecting
// clients against an authorized_keys file rather than accepting anonymous
// connections.
type AuthorizedSSH struct {
	Address        string `toml:"address"`
	AuthorizedKeys string `toml:"authorized_keys"`
	HostKey        string `toml:"host_key"`
}

// Listener configures one address the daemon accepts connections on,
// either as a plain rsync:// TCP socket, an anonymous-SSH-wrapped socket,
// or an authenticated-SSH socket.
type Listener struct {
	Rsyncd        string        `toml:"rsyncd"`
	AnonSSH       string        `toml:"anonssh"`
	AuthorizedSSH AuthorizedSSH `toml:"authorized_ssh"`
}

// Config is the top-level daemon configuration file shape.
type Config struct {
	Listeners     []Listener      `toml:"listener"`
	Modules       []rsyncd.Module `toml:"module"`
	DontNamespace bool            `toml:"dont_namespace"`
}

// DefaultPaths are tried, in order, by FromDefaultFiles.
var DefaultPaths = []string{
	"/etc/gokr-rsyncd.toml",
	"/perm/gokr-rsyncd/gokr-rsyncd.toml",
}

// FromFile parses path as a TOML daemon configuration.
func FromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err // preserve os.IsNotExist-detectability
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("rsyncdconfig.FromFile(%s): %w", path, err)
	}
	for _, mod := range cfg.Modules {
		if mod.Name == "" {
			return nil, fmt.Errorf("rsyncdconfig.FromFile(%s): module with empty name", path)
		}
	}
	return &cfg, nil
}

// FromDefaultFiles tries DefaultPaths in order, returning the first one
// that exists. The returned path lets callers log which file was loaded.
func FromDefaultFiles() (*Config, string, error) {
	var lastErr error = os.ErrNotExist
	for _, path := range DefaultPaths {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, path, err
		}
		lastErr = err
	}
	return nil, "", lastErr
}
