package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileEnv serves configuration values read from a YAML file. Nested maps are
// flattened with underscores, so
//
//	database:
//	  driver: pgx
//
// answers WM_DATABASE_DRIVER. The WM_ prefix is optional in the file.
type FileEnv map[string]string

func (f FileEnv) Getenv(key string) string {
	return f[strings.ToLower(strings.TrimPrefix(key, "WM_"))]
}

func LoadFile(path string) (FileEnv, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (FileEnv, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	out := make(FileEnv)
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out FileEnv) {
	for k, v := range in {
		key := strings.ToLower(strings.TrimPrefix(strings.ToUpper(k), "WM_"))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

type layeredEnv []Env

func (l layeredEnv) Getenv(key string) string {
	for _, env := range l {
		if v := env.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Layered returns an Env that consults each layer in order and answers with
// the first non-empty value.
func Layered(layers ...Env) Env { return layeredEnv(layers) }
