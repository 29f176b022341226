package ddbstore

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// MaxBatchWriteItems is the DynamoDB limit on write requests per BatchWriteItem call.
const MaxBatchWriteItems = 25

type writeOp struct {
	tableName string
	schema    *tableSchema
	req       types.WriteRequest
	key       []byte
	pk        table.PrimaryKey
	val       []byte // serialized item, puts only
}

// BatchWriteItem performs multiple put/delete operations.
//
// The whole request is rejected with a ValidationException when it is
// malformed, as DynamoDB does. Each valid request is then applied in its own
// transaction. Requests beyond StoreOptions.WriteCapacity, and requests whose
// transaction fails, are returned in UnprocessedItems.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("request items is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ops, err := s.prepareWrites(params.RequestItems)
	if err != nil {
		return nil, err
	}

	unprocessed := make(map[string][]types.WriteRequest)
	for i, op := range ops {
		if s.opts.WriteCapacity > 0 && i >= s.opts.WriteCapacity {
			unprocessed[op.tableName] = append(unprocessed[op.tableName], op.req)
			continue
		}
		if err := s.db.Update(func(txn *badger.Txn) error {
			return s.applyWrite(txn, op)
		}); err != nil {
			s.logger.Warn("write request not processed", "table", op.tableName, "error", err)
			unprocessed[op.tableName] = append(unprocessed[op.tableName], op.req)
		}
	}

	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: unprocessed,
	}, nil
}

// prepareWrites validates every request up front, in table name order.
func (s *Store) prepareWrites(requestItems map[string][]types.WriteRequest) ([]writeOp, error) {
	names := make([]string, 0, len(requestItems))
	total := 0
	for name, reqs := range requestItems {
		names = append(names, name)
		total += len(reqs)
	}
	if total > MaxBatchWriteItems {
		return nil, validationError("Too many items requested for the BatchWriteItem call: %d > %d", total, MaxBatchWriteItems)
	}
	if total == 0 {
		return nil, validationError("request items must not be empty")
	}
	slices.Sort(names)

	ops := make([]writeOp, 0, total)
	for _, name := range names {
		schema, err := s.getActiveTable(&name)
		if err != nil {
			return nil, err
		}
		for _, req := range requestItems[name] {
			op := writeOp{tableName: name, schema: schema, req: req}
			var item map[string]types.AttributeValue
			switch {
			case req.PutRequest != nil && req.DeleteRequest == nil:
				item = req.PutRequest.Item
			case req.DeleteRequest != nil && req.PutRequest == nil:
				item = req.DeleteRequest.Key
				if len(item) != len(schema.definition.KeyDefinitions.Names()) {
					return nil, validationError("The provided key element does not match the schema")
				}
			default:
				return nil, validationError("write request must contain exactly one of PutRequest or DeleteRequest")
			}

			op.key, op.pk, err = schema.itemKey(item)
			if err != nil {
				return nil, validationError("One or more parameter values were invalid: %v", err)
			}
			if req.PutRequest != nil {
				for _, gsi := range schema.definition.GSIs {
					if _, _, err := schema.indexKey(gsi, item, op.pk); err != nil {
						return nil, validationError("One or more parameter values were invalid: %v", err)
					}
				}
				if op.val, err = serializeItem(item); err != nil {
					return nil, validationError("%v", err)
				}
			}
			for _, prev := range ops {
				if bytes.Equal(prev.key, op.key) {
					return nil, validationError("Provided list of item keys contains duplicates")
				}
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (s *Store) applyWrite(txn *badger.Txn, op writeOp) error {
	old, err := getStoredItem(txn, op.key)
	if err != nil {
		return err
	}

	if op.req.DeleteRequest != nil {
		if old == nil {
			return nil
		}
		if err := txn.Delete(op.key); err != nil {
			return err
		}
		return s.deleteIndexEntries(txn, op, old)
	}

	if err := txn.Set(op.key, op.val); err != nil {
		return err
	}
	if old != nil {
		if err := s.deleteIndexEntries(txn, op, old); err != nil {
			return err
		}
	}
	item := op.req.PutRequest.Item
	for _, gsi := range op.schema.definition.GSIs {
		key, ok, err := op.schema.indexKey(gsi, item, op.pk)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		val, err := serializeItem(op.schema.project(gsi, item))
		if err != nil {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteIndexEntries(txn *badger.Txn, op writeOp, old map[string]types.AttributeValue) error {
	for _, gsi := range op.schema.definition.GSIs {
		key, ok, err := op.schema.indexKey(gsi, old, op.pk)
		if err != nil || !ok {
			continue
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// getStoredItem returns nil, nil when key is absent.
func getStoredItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	it, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = it.Value(func(val []byte) error {
		item, err = deserializeItem(val)
		return err
	})
	return item, err
}
