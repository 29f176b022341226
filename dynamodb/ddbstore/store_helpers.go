package ddbstore

import (
	"fmt"
	"regexp"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Errors use the SDK's types so callers can match them with errors.As the
// same way against AWS and the store.

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

// validName matches the table and index names DynamoDB accepts.
var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)

func checkName(kind, name string) error {
	if !validName.MatchString(name) {
		return validationError("Invalid %s name %q: must be 3-255 characters of [A-Za-z0-9_.-]", kind, name)
	}
	return nil
}

func resourceNotFound(format string, args ...any) error {
	return &types.ResourceNotFoundException{Message: aws.String(fmt.Sprintf(format, args...))}
}

func resourceInUse(format string, args ...any) error {
	return &types.ResourceInUseException{Message: aws.String(fmt.Sprintf(format, args...))}
}

// itemKey is the badger key of a table item.
func (t *tableSchema) itemKey(item map[string]types.AttributeValue) ([]byte, table.PrimaryKey, error) {
	pk, err := t.definition.ExtractPrimaryKey(item)
	if err != nil {
		return nil, table.PrimaryKey{}, err
	}
	key, err := encodeKey(tablePrefix(t.definition.Name), pk)
	if err != nil {
		return nil, table.PrimaryKey{}, err
	}
	return key, pk, nil
}

// indexKey is the badger key of item's entry in gsi. ok is false when the item
// lacks the index key attributes and so is not part of the sparse index.
func (t *tableSchema) indexKey(gsi table.GSIDefinition, item map[string]types.AttributeValue, tablePK table.PrimaryKey) (key []byte, ok bool, err error) {
	if gsi.KeyDefinitions.Attributes(item) == nil {
		return nil, false, nil
	}
	gsiPK, err := gsi.ExtractPrimaryKey(item)
	if err != nil {
		return nil, false, fmt.Errorf("index %s: %w", gsi.Name, err)
	}
	key, err = encodeKey(indexPrefix(t.definition.Name, gsi.Name), gsiPK, tablePK)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// project returns what gsi stores for item.
func (t *tableSchema) project(gsi table.GSIDefinition, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if gsi.ProjectionType() == types.ProjectionTypeAll {
		return item
	}
	out := t.definition.KeyDefinitions.Attributes(item)
	for k, v := range gsi.KeyDefinitions.Attributes(item) {
		out[k] = v
	}
	return out
}

// lastEvaluatedKey holds the attributes a Scan needs to resume after item.
func (t *tableSchema) lastEvaluatedKey(item map[string]types.AttributeValue, gsi *table.GSIDefinition) map[string]types.AttributeValue {
	out := t.definition.KeyDefinitions.Attributes(item)
	if gsi != nil {
		for k, v := range gsi.KeyDefinitions.Attributes(item) {
			out[k] = v
		}
	}
	return out
}
