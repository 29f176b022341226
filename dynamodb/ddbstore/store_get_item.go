package ddbstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem returns the item with the given key. Item is nil when absent.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, err := s.getActiveTable(params.TableName)
	if err != nil {
		return nil, err
	}
	if len(params.Key) != len(schema.definition.KeyDefinitions.Names()) {
		return nil, validationError("The provided key element does not match the schema")
	}
	key, _, err := schema.itemKey(params.Key)
	if err != nil {
		return nil, validationError("The provided key element does not match the schema: %v", err)
	}

	var item map[string]types.AttributeValue
	err = s.db.View(func(txn *badger.Txn) error {
		item, err = getStoredItem(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item != nil && params.ProjectionExpression != nil {
		proj, err := parseProjection(*params.ProjectionExpression, params.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}
		item = proj.apply(item)
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}
