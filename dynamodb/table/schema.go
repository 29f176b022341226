package table

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// SchemaFile is the YAML form of one or more table definitions.
//
//	tables:
//	  - name: fake-StudentClasses
//	    partitionKey: {name: studentId, kind: S}
//	    gsis:
//	      - name: byClass
//	        partitionKey: {name: classId, kind: S}
//	        projection: ALL
type SchemaFile struct {
	Tables []TableSchema `yaml:"tables"`
}

type TableSchema struct {
	Name         string      `yaml:"name"`
	PartitionKey KeyDefYAML  `yaml:"partitionKey"`
	SortKey      *KeyDefYAML `yaml:"sortKey,omitempty"`
	GSIs         []GSISchema `yaml:"gsis,omitempty"`
}

type KeyDefYAML struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "S", "N", or "B"
}

type GSISchema struct {
	Name         string      `yaml:"name"`
	PartitionKey KeyDefYAML  `yaml:"partitionKey"`
	SortKey      *KeyDefYAML `yaml:"sortKey,omitempty"`
	Projection   string      `yaml:"projection,omitempty"`
}

// LoadSchemaFiles parses every file matching pattern. Definitions for the
// same table name in later files replace earlier ones.
func LoadSchemaFiles(pattern string) ([]TableDefinition, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob pattern error: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no schema files found matching: %s", pattern)
	}
	sort.Strings(matches)

	byName := make(map[string]TableDefinition)
	var order []string
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		defs, err := ParseSchema(data)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		for _, def := range defs {
			if _, ok := byName[def.Name]; !ok {
				order = append(order, def.Name)
			}
			byName[def.Name] = def
		}
	}
	out := make([]TableDefinition, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

func ParseSchema(data []byte) ([]TableDefinition, error) {
	var sf SchemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	defs := make([]TableDefinition, 0, len(sf.Tables))
	for _, ts := range sf.Tables {
		def, err := ts.toTableDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (ts TableSchema) toTableDefinition() (TableDefinition, error) {
	keys, err := toKeyDefinition(ts.PartitionKey, ts.SortKey)
	if err != nil {
		return TableDefinition{}, fmt.Errorf("table %s: %w", ts.Name, err)
	}
	def := TableDefinition{Name: ts.Name, KeyDefinitions: keys}
	for _, g := range ts.GSIs {
		gkeys, err := toKeyDefinition(g.PartitionKey, g.SortKey)
		if err != nil {
			return TableDefinition{}, fmt.Errorf("table %s index %s: %w", ts.Name, g.Name, err)
		}
		def.GSIs = append(def.GSIs, GSIDefinition{
			Name:           g.Name,
			KeyDefinitions: gkeys,
			Projection:     Projection(g.Projection),
		})
	}
	if err := def.Validate(); err != nil {
		return TableDefinition{}, err
	}
	return def, nil
}

func toKeyDefinition(pk KeyDefYAML, sk *KeyDefYAML) (PrimaryKeyDefinition, error) {
	kind, err := ParseKeyKind(pk.Kind)
	if err != nil {
		return PrimaryKeyDefinition{}, fmt.Errorf("partition key %q: %w", pk.Name, err)
	}
	def := PrimaryKeyDefinition{PartitionKey: KeyDef{Name: pk.Name, Kind: kind}}
	if sk != nil {
		kind, err := ParseKeyKind(sk.Kind)
		if err != nil {
			return PrimaryKeyDefinition{}, fmt.Errorf("sort key %q: %w", sk.Name, err)
		}
		def.SortKey = KeyDef{Name: sk.Name, Kind: kind}
	}
	return def, nil
}
