package config

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

// EnvMapping ties an environment variable to a configuration path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var (
	cachedMappings []EnvMapping
	mappingsOnce   sync.Once
)

// EnvMappings lists every variable declared through `env` struct tags.
func EnvMappings() []EnvMapping {
	mappingsOnce.Do(func() {
		cachedMappings = extractMappings(reflect.TypeOf(Config{}), "")
	})
	return cachedMappings
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if env := field.Tag.Get("env"); env != "" && env != "-" {
			mappings = append(mappings, EnvMapping{
				EnvVar:     env,
				ConfigPath: path,
				Sensitive:  isSensitive(field),
			})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			mappings = append(mappings, extractMappings(field.Type, path)...)
		}
	}
	return mappings
}

func isSensitive(field reflect.StructField) bool {
	return field.Type == reflect.TypeOf(SensitiveString("")) || field.Tag.Get("sensitive") == "true"
}

// IsSensitiveConfigPath reports whether the value at configPath is a secret.
func IsSensitiveConfigPath(configPath string) bool {
	for _, m := range EnvMappings() {
		if m.ConfigPath == configPath {
			return m.Sensitive
		}
	}
	return false
}

// transformEnvKey converts unmapped variable names to koanf paths, for
// example RUNTIME_LOG_LEVEL -> runtime.log_level.
func transformEnvKey(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_'
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return parts[0] + "." + strings.Join(parts[1:], "_")
	}
}

// Values returns every configuration value keyed by its path. Durations are
// rendered as strings and secrets are redacted.
func Values(cfg *Config) map[string]any {
	out := make(map[string]any)
	if cfg != nil {
		collectValues(reflect.ValueOf(*cfg), "", out)
	}
	return out
}

func collectValues(v reflect.Value, prefix string, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("koanf")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		fv := v.Field(i)
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			collectValues(fv, path, out)
			continue
		}
		switch x := fv.Interface().(type) {
		case time.Duration:
			out[path] = x.String()
		case SensitiveString:
			out[path] = x.String()
		default:
			out[path] = x
		}
	}
}
