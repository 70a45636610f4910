// Package config loads the optional TOML options file used to configure
// a Connector's ambient concerns (data directory, CRS, task classes,
// remote persistence backend) outside of the core library's direct Go
// API: a flat struct decoded with github.com/BurntSushi/toml, after a
// pass that expands $ENV_VAR references in the raw file.
package config

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/go-spatial/geographer/geoerrors"
)

// Config is the top-level decoded options document.
type Config struct {
	DataDir         string   `toml:"data_dir"`
	CRSEPSG         uint64   `toml:"crs_epsg"`
	TaskClasses     []string `toml:"task_classes"`
	BackgroundClass string   `toml:"background_class"`

	Remote RemoteConfig `toml:"remote"`
}

// RemoteConfig describes an optional remote persistence backend,
// consumed by connector.RemoteBackendFor. Name is empty when the
// connector should only use the local data directory.
type RemoteConfig struct {
	Name          string `toml:"name"` // "azure" is the only backend this module ships
	ContainerURL  string `toml:"container_url"`
	AccountName   string `toml:"account_name"`
	AccountKeyEnv string `toml:"account_key_env"`
	Prefix        string `toml:"prefix"`
}

// Load reads and decodes the TOML file at path, expanding $ENV_VAR
// references first.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, geoerrors.NewPersistenceError(path, "opening config file", err)
	}
	defer f.Close()

	expanded, err := replaceEnvVars(f)
	if err != nil {
		return Config{}, geoerrors.NewPersistenceError(path, "expanding env vars in config file", err)
	}
	data, err := ioutil.ReadAll(expanded)
	if err != nil {
		return Config{}, geoerrors.NewPersistenceError(path, "reading expanded config file", err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, geoerrors.NewPersistenceError(path, "decoding TOML config file", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$[a-zA-Z_][a-zA-Z0-9_]*`)

// replaceEnvVars scans rdr for $VAR_NAME tokens and substitutes the
// value of the named environment variable, leaving anything that
// doesn't look like a bare variable reference (e.g. "$32.78") alone.
func replaceEnvVars(rdr io.Reader) (io.Reader, error) {
	data, err := ioutil.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	replaced := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[1:])
		return []byte(os.Getenv(name))
	})
	return bufio.NewReader(bytes.NewReader(replaced)), nil
}
