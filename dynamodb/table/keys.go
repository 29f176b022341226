package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // zero value means the key has no sort key
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

// ParseKeyKind accepts the DynamoDB scalar type names S, N and B.
func ParseKeyKind(s string) (KeyKind, error) {
	switch KeyKind(s) {
	case KeyKindS, KeyKindN, KeyKindB:
		return KeyKind(s), nil
	default:
		return "", fmt.Errorf("invalid key kind %q: must be S, N, or B", s)
	}
}

func (k KeyKind) AttributeType() types.ScalarAttributeType {
	return types.ScalarAttributeType(k)
}

func (k PrimaryKeyDefinition) HasSortKey() bool {
	return k.SortKey.Name != ""
}

// Names returns the key attribute names, partition key first.
func (k PrimaryKeyDefinition) Names() []string {
	if !k.HasSortKey() {
		return []string{k.PartitionKey.Name}
	}
	return []string{k.PartitionKey.Name, k.SortKey.Name}
}

func (k PrimaryKeyDefinition) KeySchema() []types.KeySchemaElement {
	ks := []types.KeySchemaElement{{
		AttributeName: aws.String(k.PartitionKey.Name),
		KeyType:       types.KeyTypeHash,
	}}
	if k.HasSortKey() {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(k.SortKey.Name),
			KeyType:       types.KeyTypeRange,
		})
	}
	return ks
}

func (k PrimaryKeyDefinition) validate() error {
	if k.PartitionKey.Name == "" {
		return fmt.Errorf("partition key name is required")
	}
	if _, err := ParseKeyKind(string(k.PartitionKey.Kind)); err != nil {
		return fmt.Errorf("partition key %q: %w", k.PartitionKey.Name, err)
	}
	if !k.HasSortKey() {
		return nil
	}
	if k.SortKey.Name == k.PartitionKey.Name {
		return fmt.Errorf("sort key %q duplicates the partition key", k.SortKey.Name)
	}
	if _, err := ParseKeyKind(string(k.SortKey.Kind)); err != nil {
		return fmt.Errorf("sort key %q: %w", k.SortKey.Name, err)
	}
	return nil
}

// KeyDefinitionFromSchema rebuilds a key definition from the wire representation
// used by CreateTable and DescribeTable.
func KeyDefinitionFromSchema(ks []types.KeySchemaElement, attrs []types.AttributeDefinition) (PrimaryKeyDefinition, error) {
	kinds := make(map[string]KeyKind, len(attrs))
	for _, a := range attrs {
		kinds[aws.ToString(a.AttributeName)] = KeyKind(a.AttributeType)
	}
	var def PrimaryKeyDefinition
	for _, el := range ks {
		name := aws.ToString(el.AttributeName)
		kind, ok := kinds[name]
		if !ok {
			return PrimaryKeyDefinition{}, fmt.Errorf("key attribute %q has no attribute definition", name)
		}
		switch el.KeyType {
		case types.KeyTypeHash:
			def.PartitionKey = KeyDef{Name: name, Kind: kind}
		case types.KeyTypeRange:
			def.SortKey = KeyDef{Name: name, Kind: kind}
		default:
			return PrimaryKeyDefinition{}, fmt.Errorf("unknown key type %q for %q", el.KeyType, name)
		}
	}
	if err := def.validate(); err != nil {
		return PrimaryKeyDefinition{}, err
	}
	return def, nil
}

type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// ExtractPrimaryKey reads the key attributes out of doc and checks them against the definition.
func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("partition key %q: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if !k.HasSortKey() {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

// Attributes returns the key attributes of doc, or nil if doc lacks any of them.
func (k PrimaryKeyDefinition) Attributes(doc map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, 2)
	for _, name := range k.Names() {
		v, ok := doc[name]
		if !ok {
			return nil
		}
		out[name] = v
	}
	return out
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		panic(fmt.Sprintf("unsupported attribute value %T for dynamodb keys", v))
	}
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		if av.Value == "" {
			return fmt.Errorf("empty string is not a valid key value")
		}
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		if len(av.Value) == 0 {
			return fmt.Errorf("empty binary is not a valid key value")
		}
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}
