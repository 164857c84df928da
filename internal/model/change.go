// Package model defines the pipeline state tracker's data structures: the
// change identity under rollout, trigger and completion records, per-stage
// job status, and the immutable pipeline snapshot with its promotion gate.
package model

import "fmt"

// Version is a platform version, e.g. "7.231.4".
type Version string

// Revision identifies a built application package, e.g. a source hash.
type Revision string

// Change identifies what is being rolled out: either a platform version
// upgrade or a new application revision. Changes are compared only by
// equality, never ordered.
type Change struct {
	Version  Version  `yaml:"version,omitempty"`
	Revision Revision `yaml:"revision,omitempty"`
}

// VersionChange returns a change that rolls out a new platform version.
func VersionChange(v Version) Change { return Change{Version: v} }

// RevisionChange returns a change that rolls out a new application revision.
func RevisionChange(r Revision) Change { return Change{Revision: r} }

// IsZero reports whether no change is pending.
func (c Change) IsZero() bool { return c == Change{} }

// IsVersion reports whether this is a platform version change.
func (c Change) IsVersion() bool { return c.Version != "" }

func (c Change) String() string {
	switch {
	case c.IsZero():
		return "no change"
	case c.IsVersion():
		return fmt.Sprintf("version %s", c.Version)
	default:
		return fmt.Sprintf("revision %s", c.Revision)
	}
}
