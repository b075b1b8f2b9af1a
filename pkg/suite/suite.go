// Package suite models dependency-ordered test suites: a DAG of route
// entries with validation, cycle detection, and execution planning, plus the
// coordinator that runs a suite through the run coordinator.
package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one test in a suite. Name is derived from the route file's stem
// and is what dependency edges refer to.
type Entry struct {
	Name      string
	Route     string
	DependsOn []string
}

// Suite is a named collection of test entries with dependency edges.
type Suite struct {
	Name    string
	Path    string
	Entries []Entry
}

type suiteFile struct {
	Name  string `json:"name"`
	Tests []struct {
		Route     string   `json:"route"`
		DependsOn []string `json:"dependsOn,omitempty"`
	} `json:"tests"`
}

// Parse decodes a suite definition. Entry names are the route file stems.
func Parse(data []byte) (*Suite, error) {
	var f suiteFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid suite JSON: %w", err)
	}

	s := &Suite{Name: f.Name}
	for _, t := range f.Tests {
		s.Entries = append(s.Entries, Entry{
			Name:      entryName(t.Route),
			Route:     t.Route,
			DependsOn: append([]string(nil), t.DependsOn...),
		})
	}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid suite %q: %w", s.Name, joinErrors(errs))
	}
	return s, nil
}

// LoadFile reads and parses a suite file. The suite remembers its own path
// so route references can be resolved relative to it.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite file %s: %w", path, err)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = entryName(path)
	}
	return s, nil
}

func entryName(routePath string) string {
	base := filepath.Base(routePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Validate returns every structural problem with the suite: empty routes,
// duplicate entry names, unknown dependencies, and dependency cycles. An
// empty result means the suite is runnable.
func (s *Suite) Validate() []error {
	var errs []error

	names := make(map[string]bool, len(s.Entries))
	for i, e := range s.Entries {
		if e.Route == "" {
			errs = append(errs, fmt.Errorf("entry %d has an empty route", i))
			continue
		}
		if names[e.Name] {
			errs = append(errs, fmt.Errorf("duplicate entry name %q", e.Name))
		}
		names[e.Name] = true
	}

	for _, e := range s.Entries {
		for _, dep := range e.DependsOn {
			if !names[dep] {
				errs = append(errs, fmt.Errorf("entry %q depends on unknown entry %q", e.Name, dep))
			}
		}
	}

	if cycle := s.findCycle(); cycle != nil {
		errs = append(errs, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}
	return errs
}

// findCycle runs DFS with a recursion stack and returns the first cycle
// found, or nil.
func (s *Suite) findCycle() []string {
	deps := s.dependencyMap()

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(s.Entries))

	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = inStack
		stack = append(stack, name)
		for _, dep := range deps[name] {
			switch state[dep] {
			case inStack:
				// Slice the stack from the first occurrence of dep.
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, e := range s.Entries {
		if state[e.Name] == unvisited && visit(e.Name) {
			return cycle
		}
	}
	return nil
}

// ExecutionLevels groups entries by longest dependency path: level 0 holds
// entries with no dependencies, level k holds entries whose dependencies all
// sit in levels below k. A stall with entries remaining means a cycle, which
// validation already rejects; ExecutionLevels errors anyway.
func (s *Suite) ExecutionLevels() ([][]Entry, error) {
	placed := make(map[string]bool, len(s.Entries))
	remaining := append([]Entry(nil), s.Entries...)

	var levels [][]Entry
	for len(remaining) > 0 {
		var level []Entry
		var next []Entry
		for _, e := range remaining {
			if allPlaced(e.DependsOn, placed) {
				level = append(level, e)
			} else {
				next = append(next, e)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("suite %q has a dependency cycle", s.Name)
		}
		for _, e := range level {
			placed[e.Name] = true
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels, nil
}

// TopologicalOrder flattens ExecutionLevels, preserving insertion order
// within each level.
func (s *Suite) TopologicalOrder() ([]Entry, error) {
	levels, err := s.ExecutionLevels()
	if err != nil {
		return nil, err
	}
	var order []Entry
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

func (s *Suite) dependencyMap() map[string][]string {
	deps := make(map[string][]string, len(s.Entries))
	for _, e := range s.Entries {
		deps[e.Name] = e.DependsOn
	}
	return deps
}

func allPlaced(deps []string, placed map[string]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

// ResolveRoute maps an entry's route reference to an existing file: absolute
// paths as-is, then relative to the suite file's directory, then its parent,
// then the configured routes directory. First hit wins.
func (s *Suite) ResolveRoute(routeRef, routesDir string) (string, error) {
	if routeRef == "" {
		return "", fmt.Errorf("route reference is empty")
	}

	var candidates []string
	if filepath.IsAbs(routeRef) {
		candidates = []string{routeRef}
	} else {
		suiteDir := filepath.Dir(s.Path)
		candidates = []string{
			filepath.Join(suiteDir, routeRef),
			filepath.Join(filepath.Dir(suiteDir), routeRef),
		}
		if routesDir != "" {
			candidates = append(candidates, filepath.Join(routesDir, routeRef))
		}
	}

	for _, c := range candidates {
		if filepath.Ext(c) == "" {
			c += ".json"
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("route %q not found for suite %q", routeRef, s.Name)
}

func joinErrors(errs []error) error {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
