package catalog

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/convoycd/convoy/internal/yamlio"
)

// TopologyFile is the on-disk form of a stage table. The topology is
// versioned alongside the deployment fleet, not alongside convoy itself.
type TopologyFile struct {
	SchemaVersion int         `yaml:"schema_version"`
	FileType      string      `yaml:"file_type"`
	Stages        []StageSpec `yaml:"stages"`
}

type StageSpec struct {
	Name  string                 `yaml:"name"`
	Class string                 `yaml:"class"`
	Zones map[SystemVariant]Zone `yaml:"zones,omitempty"`
}

// Load reads a topology file and builds a catalog from it. The file must
// carry a valid schema header and satisfy the same structural invariants as
// the built-in table.
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	if err := yamlio.ValidateSchemaHeaderFromBytes(content, yamlio.FileTypeTopology); err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}

	var file TopologyFile
	if err := yamlv3.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}

	stages := make([]Stage, 0, len(file.Stages))
	for _, spec := range file.Stages {
		stages = append(stages, Stage{
			Name:  StageName(spec.Name),
			Class: Class(spec.Class),
			Zones: spec.Zones,
		})
	}
	c, err := New(stages)
	if err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}
	return c, nil
}
