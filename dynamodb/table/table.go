package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition is the desired shape of a table: name, primary key and
// global secondary indexes. Tables are always created with on-demand billing.
type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	GSIs           []GSIDefinition
}

type Projection string

const (
	ProjectionAll      Projection = "ALL"
	ProjectionKeysOnly Projection = "KEYS_ONLY"
)

// GSIDefinition represents a Global Secondary Index definition.
type GSIDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	// Projection defaults to ProjectionAll when empty.
	Projection Projection
}

func (g GSIDefinition) ProjectionType() types.ProjectionType {
	if g.Projection == "" {
		return types.ProjectionTypeAll
	}
	return types.ProjectionType(g.Projection)
}

func (g GSIDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return g.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (g GSIDefinition) GlobalSecondaryIndex() types.GlobalSecondaryIndex {
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(g.Name),
		KeySchema:  g.KeyDefinitions.KeySchema(),
		Projection: &types.Projection{ProjectionType: g.ProjectionType()},
	}
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (t TableDefinition) GSI(name string) (GSIDefinition, bool) {
	for _, g := range t.GSIs {
		if g.Name == name {
			return g, true
		}
	}
	return GSIDefinition{}, false
}

// Validate checks the definition is something CreateTable would accept.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if err := t.KeyDefinitions.validate(); err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}
	seen := make(map[string]bool, len(t.GSIs))
	for _, g := range t.GSIs {
		if g.Name == "" {
			return fmt.Errorf("table %s: index name is required", t.Name)
		}
		if seen[g.Name] {
			return fmt.Errorf("table %s: duplicate index %q", t.Name, g.Name)
		}
		seen[g.Name] = true
		if err := g.KeyDefinitions.validate(); err != nil {
			return fmt.Errorf("table %s index %s: %w", t.Name, g.Name, err)
		}
		switch g.ProjectionType() {
		case types.ProjectionTypeAll, types.ProjectionTypeKeysOnly:
		default:
			return fmt.Errorf("table %s index %s: unsupported projection %q", t.Name, g.Name, g.Projection)
		}
	}
	return t.checkKindConflicts()
}

// checkKindConflicts rejects an attribute declared with two different kinds
// across the table key and its indexes.
func (t TableDefinition) checkKindConflicts() error {
	kinds := make(map[string]KeyKind)
	check := func(k KeyDef) error {
		if k.Name == "" {
			return nil
		}
		if prev, ok := kinds[k.Name]; ok && prev != k.Kind {
			return fmt.Errorf("table %s: attribute %q declared as both %s and %s", t.Name, k.Name, prev, k.Kind)
		}
		kinds[k.Name] = k.Kind
		return nil
	}
	defs := []PrimaryKeyDefinition{t.KeyDefinitions}
	for _, g := range t.GSIs {
		defs = append(defs, g.KeyDefinitions)
	}
	for _, d := range defs {
		if err := check(d.PartitionKey); err != nil {
			return err
		}
		if err := check(d.SortKey); err != nil {
			return err
		}
	}
	return nil
}

// AttributeDefinitions declares every attribute used by the table key and
// the given indexes, each name once, in first-seen order.
func (t TableDefinition) AttributeDefinitions(gsis ...GSIDefinition) []types.AttributeDefinition {
	var out []types.AttributeDefinition
	seen := make(map[string]bool)
	add := func(k KeyDef) {
		if k.Name == "" || seen[k.Name] {
			return
		}
		seen[k.Name] = true
		out = append(out, types.AttributeDefinition{
			AttributeName: aws.String(k.Name),
			AttributeType: k.Kind.AttributeType(),
		})
	}
	add(t.KeyDefinitions.PartitionKey)
	add(t.KeyDefinitions.SortKey)
	for _, g := range gsis {
		add(g.KeyDefinitions.PartitionKey)
		add(g.KeyDefinitions.SortKey)
	}
	return out
}

// CreateTableInput builds an on-demand CreateTable request declaring every index.
func (t TableDefinition) CreateTableInput() *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:            aws.String(t.Name),
		AttributeDefinitions: t.AttributeDefinitions(t.GSIs...),
		KeySchema:            t.KeyDefinitions.KeySchema(),
		BillingMode:          types.BillingModePayPerRequest,
	}
	for _, g := range t.GSIs {
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, g.GlobalSecondaryIndex())
	}
	return in
}

// FromCreateTableInput is the inverse of CreateTableInput.
func FromCreateTableInput(in *dynamodb.CreateTableInput) (TableDefinition, error) {
	def := TableDefinition{Name: aws.ToString(in.TableName)}
	keys, err := KeyDefinitionFromSchema(in.KeySchema, in.AttributeDefinitions)
	if err != nil {
		return TableDefinition{}, fmt.Errorf("table %s: %w", def.Name, err)
	}
	def.KeyDefinitions = keys
	for _, g := range in.GlobalSecondaryIndexes {
		gsi, err := GSIFromSchema(aws.ToString(g.IndexName), g.KeySchema, g.Projection, in.AttributeDefinitions)
		if err != nil {
			return TableDefinition{}, fmt.Errorf("table %s: %w", def.Name, err)
		}
		def.GSIs = append(def.GSIs, gsi)
	}
	if err := def.Validate(); err != nil {
		return TableDefinition{}, err
	}
	return def, nil
}

func GSIFromSchema(name string, ks []types.KeySchemaElement, p *types.Projection, attrs []types.AttributeDefinition) (GSIDefinition, error) {
	keys, err := KeyDefinitionFromSchema(ks, attrs)
	if err != nil {
		return GSIDefinition{}, fmt.Errorf("index %s: %w", name, err)
	}
	gsi := GSIDefinition{Name: name, KeyDefinitions: keys, Projection: ProjectionAll}
	if p != nil && p.ProjectionType != "" {
		gsi.Projection = Projection(p.ProjectionType)
	}
	return gsi, nil
}
