// Package configutil reads json5 configuration files in layers.
package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// Validator is implemented by configs that can check themselves once every
// layer has been applied.
type Validator interface {
	Validate() error
}

type Option func(r *reader)

// WithEnvPrefix applies environment variables (`env` struct tags, each
// prefixed with prefix) over the files. The files become optional so that a
// config can be given entirely through the environment.
func WithEnvPrefix(prefix string) Option {
	return func(r *reader) {
		r.useEnv = true
		r.envPrefix = prefix
	}
}

// SearchParents looks for the files in the working directory and then in
// each of its parents, the first directory holding either one wins.
func SearchParents() Option {
	return func(r *reader) {
		r.searchParents = true
	}
}

type reader struct {
	useEnv        bool
	envPrefix     string
	searchParents bool
}

// Read builds a config out of the following layers, later layers override
// the non-zero fields of earlier ones:
//
//  1. <name>.<ext>
//  2. <name>.local.<ext>
//  3. the environment, with WithEnvPrefix
//
// os.ErrNotExist is returned when no layer applies.
func Read[T any](name string, options ...Option) (T, error) {
	var out T
	r := reader{}
	for _, opt := range options {
		opt(&r)
	}

	path := name
	if r.searchParents {
		found, err := findUpward(name)
		if err != nil {
			return out, err
		}
		path = found
	}

	var applied []string
	for _, file := range layerFiles(path) {
		ok, err := mergeFile(&out, file)
		if err != nil {
			return out, err
		}
		if ok {
			applied = append(applied, file)
		}
	}

	if r.useEnv {
		err := env.ParseWithOptions(&out, env.Options{Prefix: r.envPrefix})
		if err != nil {
			return out, fmt.Errorf("parse env: %w", err)
		}
		applied = append(applied, r.envPrefix+"*")
	}

	if len(applied) == 0 {
		return out, os.ErrNotExist
	}
	if v, ok := any(&out).(Validator); ok {
		err := v.Validate()
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
	}

	slog.Debug("read config", "name", name, "layers", applied)
	return out, nil
}

func layerFiles(name string) []string {
	ext := filepath.Ext(name)
	return []string{
		name,
		strings.TrimSuffix(name, ext) + ".local" + ext,
	}
}

// mergeFile reports false when the file does not exist.
func mergeFile[T any](out *T, path string) (bool, error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}

	var layer T
	err = json5.Unmarshal(contents, &layer)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	err = mergo.Merge(out, layer, mergo.WithOverride)
	if err != nil {
		return false, fmt.Errorf("merge %s: %w", path, err)
	}
	return true, nil
}

func findUpward(name string) (string, error) {
	current, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(current, name)
		for _, file := range layerFiles(candidate) {
			if _, err := os.Stat(file); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", os.ErrNotExist
		}
		current = parent
	}
}
