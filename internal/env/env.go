// Package env composes the environment robot processes start with.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers variables over an optional copy of the OS environment.
type Env struct {
	base Var
	vars Var
}

// New returns an empty environment.
func New() *Env { return &Env{base: make(Var), vars: make(Var)} }

// FromOS returns an environment based on the current process environment.
func FromOS() *Env {
	e := New()
	e.base = parsePairs(os.Environ())
	return e
}

// Set sets K=V, overriding the base.
func (e *Env) Set(k, v string) *Env {
	if k != "" {
		e.vars[k] = v
	}
	return e
}

// Apply sets every "K=V" pair in order. Entries without '=' or with an empty
// key are ignored.
func (e *Env) Apply(pairs []string) *Env {
	for k, v := range parsePairs(pairs) {
		e.vars[k] = v
	}
	return e
}

// LoadFile applies a .env file: KEY=VALUE lines, '#' comments, blank lines skipped.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			e.vars[strings.TrimSpace(line[:i])] = strings.Trim(strings.TrimSpace(line[i+1:]), `"`)
		}
	}
	return nil
}

// Environ returns the sorted "K=V" list with ${VAR} references expanded once
// against the composed map.
func (e *Env) Environ() []string {
	m := make(Var, len(e.base)+len(e.vars))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func parsePairs(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}
