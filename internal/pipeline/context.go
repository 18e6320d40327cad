package pipeline

import (
	"maps"
	"os"
	"slices"
	"strings"
)

type opKind int

const (
	opSet opKind = iota
	opPrepend
	opAppend
	opFlags
)

type envOp struct {
	kind  opKind
	key   string
	value string
}

// Contribution is an ordered list of environment changes a step hands to
// the steps after it. The zero value contributes nothing.
type Contribution struct {
	ops []envOp
}

func (c Contribution) with(op envOp) Contribution {
	return Contribution{ops: append(slices.Clip(c.ops), op)}
}

// Set replaces key.
func (c Contribution) Set(key, value string) Contribution {
	return c.with(envOp{kind: opSet, key: key, value: value})
}

// PrependPath puts dir in front of the path list in key.
func (c Contribution) PrependPath(key, dir string) Contribution {
	return c.with(envOp{kind: opPrepend, key: key, value: dir})
}

// AppendPath adds dir to the end of the path list in key.
func (c Contribution) AppendPath(key, dir string) Contribution {
	return c.with(envOp{kind: opAppend, key: key, value: dir})
}

// AppendFlags adds space separated flags to key.
func (c Contribution) AppendFlags(key string, flags ...string) Contribution {
	return c.with(envOp{kind: opFlags, key: key, value: strings.Join(flags, " ")})
}

// Empty reports whether c changes nothing.
func (c Contribution) Empty() bool { return len(c.ops) == 0 }

// Context is the read-only state passed from step to step. It is never
// mutated; With returns a new Context.
type Context struct {
	runID     string
	base      []string
	overrides map[string]string
}

// NewContext snapshots environ (in KEY=VALUE form) as the base environment.
func NewContext(runID string, environ []string) Context {
	return Context{runID: runID, base: slices.Clone(environ)}
}

// RunID identifies the run the context belongs to.
func (c Context) RunID() string { return c.runID }

// Get returns the effective value of key.
func (c Context) Get(key string) (string, bool) {
	if v, ok := c.overrides[key]; ok {
		return v, true
	}
	for _, kv := range c.base {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// With applies contribution on top of c and returns the result.
func (c Context) With(contribution Contribution) Context {
	if contribution.Empty() {
		return c
	}
	next := Context{runID: c.runID, base: c.base, overrides: maps.Clone(c.overrides)}
	if next.overrides == nil {
		next.overrides = make(map[string]string, len(contribution.ops))
	}
	for _, op := range contribution.ops {
		current, _ := next.Get(op.key)
		switch op.kind {
		case opSet:
			next.overrides[op.key] = op.value
		case opPrepend:
			next.overrides[op.key] = joinNonEmpty(string(os.PathListSeparator), op.value, current)
		case opAppend:
			next.overrides[op.key] = joinNonEmpty(string(os.PathListSeparator), current, op.value)
		case opFlags:
			next.overrides[op.key] = joinNonEmpty(" ", current, op.value)
		}
	}
	return next
}

func joinNonEmpty(sep, a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + sep + b
}

// Environ renders the effective environment for an external process. Base
// entries keep their order; keys only present in overrides follow, sorted.
func (c Context) Environ() []string {
	out := make([]string, 0, len(c.base)+len(c.overrides))
	seen := make(map[string]bool, len(c.overrides))
	for _, kv := range c.base {
		k, _, _ := strings.Cut(kv, "=")
		if v, ok := c.overrides[k]; ok {
			if !seen[k] {
				out = append(out, k+"="+v)
				seen[k] = true
			}
			continue
		}
		out = append(out, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(c.overrides)) {
		if !seen[k] {
			out = append(out, k+"="+c.overrides[k])
		}
	}
	return out
}
