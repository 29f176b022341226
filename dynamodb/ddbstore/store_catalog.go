package ddbstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

type catalogEntry struct {
	Definition     table.TableDefinition `json:"definition"`
	CreatedAt      time.Time             `json:"createdAt"`
	IndexCreatedAt map[string]time.Time  `json:"indexCreatedAt,omitempty"`
}

func (s *Store) loadCatalog() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(catalogPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry catalogEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("load catalog entry %q: %w", it.Item().Key(), err)
			}
			if entry.IndexCreatedAt == nil {
				entry.IndexCreatedAt = make(map[string]time.Time)
			}
			s.tables[entry.Definition.Name] = &tableSchema{
				definition:     entry.Definition,
				createdAt:      entry.CreatedAt,
				indexCreatedAt: entry.IndexCreatedAt,
			}
		}
		return nil
	})
}

func putCatalog(txn *badger.Txn, schema *tableSchema) error {
	val, err := json.Marshal(catalogEntry{
		Definition:     schema.definition,
		CreatedAt:      schema.createdAt,
		IndexCreatedAt: schema.indexCreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode catalog entry: %w", err)
	}
	return txn.Set(catalogKey(schema.definition.Name), val)
}

// CreateTable registers a table. Billing and throughput settings are accepted
// and ignored.
func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	return s.createTable(params, s.now())
}

func (s *Store) createTable(params *dynamodb.CreateTableInput, createdAt time.Time) (*dynamodb.CreateTableOutput, error) {
	def, err := table.FromCreateTableInput(params)
	if err != nil {
		return nil, validationError("%v", err)
	}
	if err := checkName("table", def.Name); err != nil {
		return nil, err
	}
	for _, g := range def.GSIs {
		if err := checkName("index", g.Name); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[def.Name]; ok {
		return nil, resourceInUse("Table already exists: %s", def.Name)
	}
	schema := &tableSchema{
		definition:     def,
		createdAt:      createdAt,
		indexCreatedAt: make(map[string]time.Time, len(def.GSIs)),
	}
	for _, g := range def.GSIs {
		schema.indexCreatedAt[g.Name] = createdAt
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return putCatalog(txn, schema)
	}); err != nil {
		return nil, err
	}
	s.tables[def.Name] = schema
	s.logger.Info("table created", "table", def.Name, "indexes", len(def.GSIs))

	return &dynamodb.CreateTableOutput{TableDescription: s.describe(schema, nil)}, nil
}

// DescribeTable reports status, key schema, indexes and item counts.
func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(schema.definition.GSIs)+1)
	err = s.db.View(func(txn *badger.Txn) error {
		counts[""] = countPrefix(txn, tablePrefix(schema.definition.Name))
		for _, g := range schema.definition.GSIs {
			counts[g.Name] = countPrefix(txn, indexPrefix(schema.definition.Name, g.Name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: s.describe(schema, counts)}, nil
}

// UpdateTable creates or deletes one global secondary index per call.
// Creating an index backfills it from the items already in the table.
func (s *Store) UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	if !s.active(schema.createdAt) {
		return nil, resourceInUse("Table is being created: %s", schema.definition.Name)
	}
	switch len(params.GlobalSecondaryIndexUpdates) {
	case 0:
		return &dynamodb.UpdateTableOutput{TableDescription: s.describe(schema, nil)}, nil
	case 1:
	default:
		return nil, validationError("only one global secondary index can be created or deleted per UpdateTable call")
	}

	upd := params.GlobalSecondaryIndexUpdates[0]
	next := &tableSchema{
		definition:     schema.definition,
		createdAt:      schema.createdAt,
		indexCreatedAt: make(map[string]time.Time, len(schema.indexCreatedAt)+1),
	}
	for k, v := range schema.indexCreatedAt {
		next.indexCreatedAt[k] = v
	}

	switch {
	case upd.Create != nil:
		name := aws.ToString(upd.Create.IndexName)
		if _, exists := schema.definition.GSI(name); exists {
			return nil, validationError("Attempting to create an index which already exists: %s", name)
		}
		attrs := append(schema.definition.AttributeDefinitions(schema.definition.GSIs...), params.AttributeDefinitions...)
		if err := checkName("index", name); err != nil {
			return nil, err
		}
		gsi, err := table.GSIFromSchema(name, upd.Create.KeySchema, upd.Create.Projection, attrs)
		if err != nil {
			return nil, validationError("%v", err)
		}
		next.definition.GSIs = append(slices.Clone(schema.definition.GSIs), gsi)
		if err := next.definition.Validate(); err != nil {
			return nil, validationError("%v", err)
		}
		next.indexCreatedAt[name] = s.now()

		n, err := s.backfill(next, gsi)
		if err != nil {
			return nil, fmt.Errorf("backfill index %s: %w", name, err)
		}
		s.logger.Info("index created", "table", schema.definition.Name, "index", name, "backfilled", n)

	case upd.Delete != nil:
		name := aws.ToString(upd.Delete.IndexName)
		if _, exists := schema.definition.GSI(name); !exists {
			return nil, resourceNotFound("Requested resource not found: index %s", name)
		}
		next.definition.GSIs = slices.DeleteFunc(slices.Clone(schema.definition.GSIs), func(g table.GSIDefinition) bool {
			return g.Name == name
		})
		delete(next.indexCreatedAt, name)
		if err := s.db.DropPrefix(indexPrefix(schema.definition.Name, name)); err != nil {
			return nil, fmt.Errorf("drop index %s: %w", name, err)
		}
		s.logger.Info("index deleted", "table", schema.definition.Name, "index", name)

	default:
		return nil, validationError("only Create and Delete index updates are supported")
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return putCatalog(txn, next)
	}); err != nil {
		return nil, err
	}
	s.tables[next.definition.Name] = next
	return &dynamodb.UpdateTableOutput{TableDescription: s.describe(next, nil)}, nil
}

// backfill writes index entries for every existing item and returns how many
// items landed in the index.
func (s *Store) backfill(schema *tableSchema, gsi table.GSIDefinition) (int, error) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tablePrefix(schema.definition.Name)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			pk, err := schema.definition.ExtractPrimaryKey(item)
			if err != nil {
				return err
			}
			key, ok, err := schema.indexKey(gsi, item, pk)
			if err != nil {
				s.logger.Warn("item not indexed", "table", schema.definition.Name, "index", gsi.Name, "error", err)
				continue
			}
			if !ok {
				continue
			}
			val, err := serializeItem(schema.project(gsi, item))
			if err != nil {
				return err
			}
			if err := wb.Set(key, val); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, wb.Flush()
}

// DeleteTable removes a table with its items and index entries.
func (s *Store) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	name := schema.definition.Name
	prefixes := [][]byte{tablePrefix(name)}
	for _, g := range schema.definition.GSIs {
		prefixes = append(prefixes, indexPrefix(name, g.Name))
	}
	if err := s.db.DropPrefix(prefixes...); err != nil {
		return nil, fmt.Errorf("drop table %s: %w", name, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(catalogKey(name))
	}); err != nil {
		return nil, err
	}
	delete(s.tables, name)
	s.logger.Info("table deleted", "table", name)

	desc := s.describe(schema, nil)
	desc.TableStatus = types.TableStatusDeleting
	return &dynamodb.DeleteTableOutput{TableDescription: desc}, nil
}

// ListTables returns table names in lexical order.
func (s *Store) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if params == nil {
		params = &dynamodb.ListTablesInput{}
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)

	if start := aws.ToString(params.ExclusiveStartTableName); start != "" {
		i, found := slices.BinarySearch(names, start)
		if found {
			i++
		}
		names = names[i:]
	}
	out := &dynamodb.ListTablesOutput{}
	if limit := int(aws.ToInt32(params.Limit)); limit > 0 && len(names) > limit {
		names = names[:limit]
		out.LastEvaluatedTableName = aws.String(names[limit-1])
	}
	out.TableNames = names
	return out, nil
}

// describe builds a TableDescription. counts holds item counts keyed by index
// name, with "" for the table itself; nil leaves counts unset.
func (s *Store) describe(schema *tableSchema, counts map[string]int64) *types.TableDescription {
	def := schema.definition
	desc := &types.TableDescription{
		TableName:            aws.String(def.Name),
		TableArn:             aws.String("arn:aws:dynamodb:ddblocal:000000000000:table/" + def.Name),
		TableStatus:          types.TableStatusActive,
		KeySchema:            def.KeyDefinitions.KeySchema(),
		AttributeDefinitions: def.AttributeDefinitions(def.GSIs...),
		CreationDateTime:     aws.Time(schema.createdAt),
		BillingModeSummary:   &types.BillingModeSummary{BillingMode: types.BillingModePayPerRequest},
	}
	if !s.active(schema.createdAt) {
		desc.TableStatus = types.TableStatusCreating
	}
	if counts != nil {
		desc.ItemCount = aws.Int64(counts[""])
	}
	for _, g := range def.GSIs {
		gd := types.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(g.Name),
			KeySchema:   g.KeyDefinitions.KeySchema(),
			Projection:  &types.Projection{ProjectionType: g.ProjectionType()},
			IndexStatus: types.IndexStatusActive,
			IndexArn:    aws.String(aws.ToString(desc.TableArn) + "/index/" + g.Name),
		}
		if !s.active(schema.indexCreatedAt[g.Name]) {
			gd.IndexStatus = types.IndexStatusCreating
			gd.Backfilling = aws.Bool(true)
		}
		if counts != nil {
			gd.ItemCount = aws.Int64(counts[g.Name])
		}
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, gd)
	}
	return desc
}

func countPrefix(txn *badger.Txn, prefix []byte) int64 {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var n int64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}
