// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package validate checks that the exposed method names of each call target
// type are unique.
//
// Calls name methods by name alone, so two exposed methods of one type that
// share a name cannot be told apart by a receiver. A [Collector] gathers the
// exposed names of each type from any number of declarations, and
// [Collector.Check] reports every collision at once. The dispatch package
// applies this check to its method tables, and the analyzer package applies
// it to annotated source code.
package validate

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/creachadair/mds/mapset"
)

// A Spec describes which methods of a type are exposed.
type Spec struct {
	TypeName string

	// If not empty, ExcludePattern is a regular expression that must match an
	// entire method name to exclude it.
	ExcludePattern string

	// If true, static methods are exposed, subject to ExcludePattern.
	IncludeStatic bool
}

// A Member is a method of a type.
type Member struct {
	Name   string
	Static bool
}

// Filter returns the names of the members exposed by s, in order.
// It reports an error if the exclude pattern is not a valid regexp.
func (s Spec) Filter(members []Member) ([]string, error) {
	var exclude *regexp.Regexp
	if s.ExcludePattern != "" {
		re, err := regexp.Compile(`^(?:` + s.ExcludePattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("type %s: invalid exclude pattern: %w", s.TypeName, err)
		}
		exclude = re
	}
	var out []string
	for _, m := range members {
		if Exposed(m, s.IncludeStatic, exclude) {
			out = append(out, m.Name)
		}
	}
	return out, nil
}

// Exposed reports whether m is exposed given the static policy and an
// optional compiled exclude pattern. The pattern is applied as given; callers
// that need a whole-name match must anchor it.
func Exposed(m Member, includeStatic bool, exclude *regexp.Regexp) bool {
	if m.Static && !includeStatic {
		return false
	}
	return exclude == nil || !exclude.MatchString(m.Name)
}

// A Collector accumulates exposed method names per type. A zero Collector is
// ready for use. It is safe for concurrent use by multiple goroutines.
type Collector struct {
	μ     sync.Mutex
	names map[string][]string // type name → exposed names, with repeats
}

// Add records the members of a type exposed by spec. Add may be called
// several times for the same type, for example once per source file; the
// names accumulate.
func (c *Collector) Add(spec Spec, members ...Member) error {
	names, err := spec.Filter(members)
	if err != nil {
		return err
	}
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.names == nil {
		c.names = make(map[string][]string)
	}
	c.names[spec.TypeName] = append(c.names[spec.TypeName], names...)
	return nil
}

// Check reports a *DuplicateMethodNameError describing every type with
// duplicate exposed names, or nil if there are none.
func (c *Collector) Check() error {
	c.μ.Lock()
	defer c.μ.Unlock()

	var dup DuplicateMethodNameError
	for _, typeName := range slices.Sorted(maps.Keys(c.names)) {
		if names := Duplicates(c.names[typeName]); len(names) != 0 {
			dup.Collisions = append(dup.Collisions, Collision{Type: typeName, Names: names})
		}
	}
	if len(dup.Collisions) == 0 {
		return nil
	}
	return &dup
}

// Duplicates returns the names that occur more than once in names, in
// lexicographic order.
func Duplicates(names []string) []string {
	seen, dups := mapset.New[string](), mapset.New[string]()
	for _, name := range names {
		if seen.Has(name) {
			dups.Add(name)
		} else {
			seen.Add(name)
		}
	}
	return slices.Sorted(maps.Keys(dups))
}

// A Collision records the duplicate exposed names of one type.
type Collision struct {
	Type  string
	Names []string
}

func (c Collision) String() string {
	return fmt.Sprintf("duplicate method names in %s: %s", c.Type, strings.Join(c.Names, ", "))
}

// DuplicateMethodNameError reports types whose exposed method names are not
// unique. Collisions are ordered by type name.
type DuplicateMethodNameError struct {
	Collisions []Collision
}

func (e *DuplicateMethodNameError) Error() string {
	ss := make([]string, len(e.Collisions))
	for i, c := range e.Collisions {
		ss[i] = c.String()
	}
	return strings.Join(ss, "; ")
}
