package platform

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultAppName names the config and data directories when no app name is given.
const DefaultAppName = "hub"

// Environment variables read by the hub CLI.
const (
	EnvConfig  = "HUB_CONFIG"
	EnvAppName = "HUB_APP_NAME"
	EnvDevMode = "HUB_DEV_MODE"
)

const (
	configFileName = "config.toml"
	logDirName     = "log"
	devSuffix      = "-dev"
)

// baseOverrides lists, per GOOS, the variables that relocate the config and data bases.
var baseOverrides = map[string]struct{ config, data string }{
	"linux":   {config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"},
	"windows": {config: "APPDATA", data: "LOCALAPPDATA"},
}

// Paths is the per-user layout of one hub installation.
type Paths struct {
	// AppDir is the directory name under the config and data bases. It also
	// stems the dev log file name.
	AppDir     string
	ConfigPath string
	DataDir    string
	LogDir     string
}

// Options selects which installation to resolve.
type Options struct {
	AppName string
	DevMode bool
}

// WithEnv applies HUB_APP_NAME and HUB_DEV_MODE on top of o. Unset or
// unparsable values leave the field unchanged.
func (o Options) WithEnv(lookup func(string) string) Options {
	if lookup == nil {
		return o
	}
	if name := strings.TrimSpace(lookup(EnvAppName)); name != "" {
		o.AppName = name
	}
	if raw := strings.TrimSpace(lookup(EnvDevMode)); raw != "" {
		if dev, err := strconv.ParseBool(raw); err == nil {
			o.DevMode = dev
		}
	}
	return o
}

// AppDir returns the sanitized app name, suffixed in dev mode so dev runs never share state with installed ones.
func (o Options) AppDir() string {
	dir := LogFileStem(o.AppName)
	if o.DevMode {
		dir += devSuffix
	}
	return dir
}

// DefaultPaths returns the layout of the default installation.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves opts against the current user's directories.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, err
	}
	dataBase := configBase
	if runtime.GOOS == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		dataBase = filepath.Join(home, ".local", "share")
	}
	return PathsFor(runtime.GOOS, os.Getenv, configBase, dataBase, opts)
}

// PathsFor lays out an installation under configBase and dataBase, honoring
// the base overrides of goos found through lookup.
func PathsFor(goos string, lookup func(string) string, configBase, dataBase string, opts Options) (Paths, error) {
	if strings.TrimSpace(configBase) == "" || strings.TrimSpace(dataBase) == "" {
		return Paths{}, errors.New("empty base dirs")
	}
	if o, ok := baseOverrides[goos]; ok && lookup != nil {
		if v := strings.TrimSpace(lookup(o.config)); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(lookup(o.data)); v != "" {
			dataBase = v
		}
	}
	appDir := opts.AppDir()
	dataDir := filepath.Join(dataBase, appDir)
	return Paths{
		AppDir:     appDir,
		ConfigPath: filepath.Join(configBase, appDir, configFileName),
		DataDir:    dataDir,
		LogDir:     filepath.Join(dataDir, logDirName),
	}, nil
}

// ResolveConfig picks the config file: explicit, then $HUB_CONFIG, then ConfigPath.
func (p Paths) ResolveConfig(explicit string, lookup func(string) string) string {
	if path := strings.TrimSpace(explicit); path != "" {
		return path
	}
	if lookup != nil {
		if path := strings.TrimSpace(lookup(EnvConfig)); path != "" {
			return path
		}
	}
	return p.ConfigPath
}

// DevLogFile resolves today's dev log file. An empty dir falls back to LogDir.
func (p Paths) DevLogFile(dir, cwd string, now time.Time) (string, error) {
	return DevLogFile(dir, p.LogDir, cwd, p.AppDir, now)
}
