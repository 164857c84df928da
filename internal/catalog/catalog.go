// Package catalog holds the static table of deployment pipeline stages and
// the lookup functions over it. The table never changes at runtime, so a
// Catalog is safe for unsynchronized concurrent reads.
package catalog

import (
	"errors"
	"fmt"
)

// Environment is the kind of location a stage deploys to.
type Environment string

const (
	EnvTest       Environment = "test"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "prod"
)

// Region is a physical deployment region, e.g. "us-east-3".
type Region string

// Zone is a concrete deployable location.
type Zone struct {
	Environment Environment `yaml:"environment"`
	Region      Region      `yaml:"region"`
}

// SystemVariant names a deployment fleet. The same stage may bind to a
// different zone per variant.
type SystemVariant string

const (
	VariantMain SystemVariant = "main"
	VariantCD   SystemVariant = "cd"
)

// Class is the dependency position of a stage in the rollout sequence.
type Class string

const (
	ClassPreflight       Class = "preflight"
	ClassIntegrationTest Class = "integration-test"
	ClassStagingTest     Class = "staging-test"
	ClassProduction      Class = "production"
)

// StageName is the stable external name of a stage, used verbatim in
// completion reports from the build system.
type StageName string

// Stage is one named step in the pipeline. Immutable.
type Stage struct {
	Name  StageName
	Class Class
	// Zones binds the stage to a concrete zone per system variant. Empty for
	// preflight stages. A stage with no zone entry for a variant does not run
	// in that variant.
	Zones map[SystemVariant]Zone
}

// Environment returns the environment this stage deploys to, or "" for
// preflight stages.
func (s Stage) Environment() Environment {
	switch s.Class {
	case ClassPreflight:
		return ""
	case ClassIntegrationTest:
		return EnvTest
	case ClassStagingTest:
		return EnvStaging
	default:
		return EnvProduction
	}
}

// IsProduction reports whether this stage deploys to a production zone.
func (s Stage) IsProduction() bool { return s.Class == ClassProduction }

// Zone returns the zone for this stage in the given variant.
func (s Stage) Zone(variant SystemVariant) (Zone, bool) {
	z, ok := s.Zones[variant]
	return z, ok
}

// Region returns the region for this stage in the given variant.
func (s Stage) Region(variant SystemVariant) (Region, bool) {
	z, ok := s.Zones[variant]
	return z.Region, ok
}

// ErrUnknownStage is returned when no catalog entry resolves a supplied
// external stage name. The catalog may be extended across system upgrades
// while old persisted state still references defunct names, so callers
// should treat this as "no such pipeline stage configured" and skip.
var ErrUnknownStage = errors.New("unknown pipeline stage")

// Catalog is an ordered set of stage definitions.
type Catalog struct {
	stages []Stage
	byName map[StageName]int
}

// New builds a catalog from the given stages, in order. It enforces the
// structural invariants: unique names, exactly one integration-test stage,
// exactly one staging-test stage, and distinct production zones per variant.
func New(stages []Stage) (*Catalog, error) {
	c := &Catalog{
		stages: make([]Stage, len(stages)),
		byName: make(map[StageName]int, len(stages)),
	}
	copy(c.stages, stages)

	var integration, staging int
	prodZones := make(map[SystemVariant]map[Zone]StageName)
	for i, s := range c.stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage %d: empty name", i)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		c.byName[s.Name] = i

		switch s.Class {
		case ClassPreflight:
		case ClassIntegrationTest:
			integration++
		case ClassStagingTest:
			staging++
		case ClassProduction:
			for variant, zone := range s.Zones {
				if prodZones[variant] == nil {
					prodZones[variant] = make(map[Zone]StageName)
				}
				if other, taken := prodZones[variant][zone]; taken {
					return nil, fmt.Errorf("stages %q and %q share zone %s/%s in variant %q",
						other, s.Name, zone.Environment, zone.Region, variant)
				}
				prodZones[variant][zone] = s.Name
			}
		default:
			return nil, fmt.Errorf("stage %q: unknown class %q", s.Name, s.Class)
		}
	}
	if integration != 1 {
		return nil, fmt.Errorf("catalog must contain exactly one integration-test stage, got %d", integration)
	}
	if staging != 1 {
		return nil, fmt.Errorf("catalog must contain exactly one staging-test stage, got %d", staging)
	}
	return c, nil
}

// StagesFor returns, in catalog order, the stages that run in the given
// variant: every preflight stage plus every stage bound to a zone there.
func (c *Catalog) StagesFor(variant SystemVariant) []Stage {
	var out []Stage
	for _, s := range c.stages {
		if s.Class == ClassPreflight {
			out = append(out, s)
			continue
		}
		if _, ok := s.Zones[variant]; ok {
			out = append(out, s)
		}
	}
	return out
}

// FromName resolves an external stage name.
func (c *Catalog) FromName(name StageName) (Stage, error) {
	i, ok := c.byName[name]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	return c.stages[i], nil
}

// ForZone returns the stage bound to the given zone in the given variant.
func (c *Catalog) ForZone(variant SystemVariant, zone Zone) (Stage, bool) {
	for _, s := range c.stages {
		if z, ok := s.Zones[variant]; ok && z == zone {
			return s, true
		}
	}
	return Stage{}, false
}

// ForEnvironmentRegion returns the stage for the given environment and
// region. The test and staging environments resolve to their fixed singleton
// stages regardless of region; all other environments go through the zone
// lookup.
func (c *Catalog) ForEnvironmentRegion(variant SystemVariant, env Environment, region Region) (Stage, bool) {
	switch env {
	case EnvTest:
		return c.IntegrationTest(), true
	case EnvStaging:
		return c.StagingTest(), true
	}
	return c.ForZone(variant, Zone{Environment: env, Region: region})
}

// IntegrationTest returns the singleton integration-test stage.
func (c *Catalog) IntegrationTest() Stage { return c.singleton(ClassIntegrationTest) }

// StagingTest returns the singleton staging-test stage.
func (c *Catalog) StagingTest() Stage { return c.singleton(ClassStagingTest) }

func (c *Catalog) singleton(class Class) Stage {
	for _, s := range c.stages {
		if s.Class == class {
			return s
		}
	}
	// New enforces exactly one stage per singleton class.
	panic(fmt.Sprintf("catalog without %s stage", class))
}
