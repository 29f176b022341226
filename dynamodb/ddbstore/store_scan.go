package ddbstore

import (
	"context"
	"strings"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Scan walks a table or index in key order. Limit, ExclusiveStartKey and
// top-level ProjectionExpressions are supported; FilterExpression is not.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.FilterExpression != nil {
		return nil, validationError("FilterExpression is not supported")
	}
	if params.Segment != nil || params.TotalSegments != nil {
		return nil, validationError("parallel scan is not supported")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, err := s.getActiveTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var gsi *table.GSIDefinition
	prefix := tablePrefix(schema.definition.Name)
	if name := aws.ToString(params.IndexName); name != "" {
		g, ok := schema.definition.GSI(name)
		if !ok {
			return nil, validationError("The table does not have the specified index: %s", name)
		}
		gsi = &g
		prefix = indexPrefix(schema.definition.Name, name)
	}

	var proj *projection
	if params.ProjectionExpression != nil {
		if proj, err = parseProjection(*params.ProjectionExpression, params.ExpressionAttributeNames); err != nil {
			return nil, err
		}
	}

	var startKey []byte
	if params.ExclusiveStartKey != nil {
		if startKey, err = schema.startKey(params.ExclusiveStartKey, gsi); err != nil {
			return nil, validationError("The provided starting key is invalid: %v", err)
		}
	}

	limit := int(aws.ToInt32(params.Limit))
	var items []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if startKey != nil {
			it.Seek(startKey)
			if it.Valid() && string(it.Item().Key()) == string(startKey) {
				it.Next()
			}
		}
		for ; it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				it.Next()
				if it.Valid() {
					lastKey = schema.lastEvaluatedKey(item, gsi)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scanned := int32(len(items))
	if proj != nil {
		for i, item := range items {
			items[i] = proj.apply(item)
		}
	}
	return &dynamodb.ScanOutput{
		Items:            items,
		Count:            scanned,
		ScannedCount:     scanned,
		LastEvaluatedKey: lastKey,
	}, nil
}

func (t *tableSchema) startKey(esk map[string]types.AttributeValue, gsi *table.GSIDefinition) ([]byte, error) {
	pk, err := t.definition.ExtractPrimaryKey(esk)
	if err != nil {
		return nil, err
	}
	if gsi == nil {
		return encodeKey(tablePrefix(t.definition.Name), pk)
	}
	gsiPK, err := gsi.ExtractPrimaryKey(esk)
	if err != nil {
		return nil, err
	}
	return encodeKey(indexPrefix(t.definition.Name, gsi.Name), gsiPK, pk)
}

// projection is a parsed ProjectionExpression limited to top-level attributes.
type projection struct {
	names []string
}

func parseProjection(expr string, names map[string]string) (*projection, error) {
	p := &projection{}
	for _, part := range strings.Split(expr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, validationError("Invalid ProjectionExpression: empty attribute in %q", expr)
		}
		if strings.ContainsAny(name, ".[]") {
			return nil, validationError("Invalid ProjectionExpression: nested path %q is not supported", name)
		}
		if strings.HasPrefix(name, "#") {
			resolved, ok := names[name]
			if !ok {
				return nil, validationError("Invalid ProjectionExpression: An expression attribute name used in the document path is not defined; attribute name: %s", name)
			}
			name = resolved
		}
		p.names = append(p.names, name)
	}
	return p, nil
}

func (p *projection) apply(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(p.names))
	for _, name := range p.names {
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out
}
