package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// cliProvider implements Source for CLI flags.
type cliProvider struct {
	flags map[string]any
}

// CLIFlagPaths maps CLI flag names to configuration paths.
var CLIFlagPaths = map[string]string{
	"db-conn-string":         "database.conn_string",
	"db-host":                "database.host",
	"db-port":                "database.port",
	"db-user":                "database.user",
	"db-password":            "database.password",
	"db-name":                "database.name",
	"db-ssl-mode":            "database.ssl_mode",
	"db-max-open-conns":      "database.max_open_conns",
	"migration-lock-timeout": "database.migration_lock_timeout",
	"log-level":              "runtime.log_level",
	"log-json":               "runtime.log_json",
	"metrics":                "runtime.metrics",
}

// NewCLIProvider creates a source from explicitly set flags keyed by flag
// name. Unknown flags are ignored.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{flags: flags}
}

func (c *cliProvider) Load() (map[string]any, error) {
	config := make(map[string]any)
	for key, value := range c.flags {
		path, ok := CLIFlagPaths[key]
		if !ok {
			continue
		}
		if err := setNested(config, path, value); err != nil {
			return nil, fmt.Errorf("failed to set CLI flag %s: %w", key, err)
		}
	}
	return config, nil
}

func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// setNested sets a value in a nested map structure using dot notation.
// It returns an error if a path conflict is encountered.
func setNested(m map[string]any, path string, value any) error {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	current := m
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("configuration conflict: key %q is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

// yamlProvider implements Source for YAML files.
type yamlProvider struct {
	path string
}

// NewYAMLProvider creates a source reading path. A missing file yields no
// values.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

func (y *yamlProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(y.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(config), nil
}

// filterNilValues recursively removes nil values so they cannot override
// earlier layers.
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if filtered := filterNilValues(nested); len(filtered) > 0 {
				result[k] = filtered
			}
			continue
		}
		result[k] = v
	}
	return result
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

// dotenvProvider implements Source for .env files. Only variables declared
// on Config are read; the process environment still wins over the file.
type dotenvProvider struct {
	path string
}

func NewDotenvProvider(path string) Source {
	return &dotenvProvider{path: path}
}

func (d *dotenvProvider) Load() (map[string]any, error) {
	vars, err := godotenv.Read(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", d.path, err)
	}
	config := make(map[string]any)
	for _, m := range EnvMappings() {
		value, ok := vars[m.EnvVar]
		if !ok {
			continue
		}
		if err := setNested(config, m.ConfigPath, value); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func (d *dotenvProvider) Type() SourceType {
	return SourceEnv
}
