package ddbstore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acksell/ddbseed/dynamodb/ddbiface"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/dgraph-io/badger/v4"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// It implements the table catalog, BatchWriteItem, GetItem and Scan.
type Store struct {
	db     *badger.DB
	opts   StoreOptions
	logger *slog.Logger
	now    func() time.Time

	// mu guards tables. Catalog changes take the write lock for their whole
	// duration so index backfills never interleave with batch writes.
	mu     sync.RWMutex
	tables map[string]*tableSchema
}

var _ ddbiface.Client = (*Store)(nil)

type tableSchema struct {
	definition     table.TableDefinition
	createdAt      time.Time
	indexCreatedAt map[string]time.Time
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives store and badger logs. Nil discards them.
	Logger *slog.Logger
	// WriteCapacity caps the number of write requests accepted per
	// BatchWriteItem call. The rest come back as UnprocessedItems. Zero means unlimited.
	WriteCapacity int
	// ActivationDelay keeps new tables and indexes in CREATING status for this long.
	ActivationDelay time.Duration
}

// New opens a store and registers defs that are not already in its catalog.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(badgerLogger{logger: logger.With("component", "badger")})
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		tables: make(map[string]*tableSchema),
	}
	if err := s.loadCatalog(); err != nil {
		db.Close()
		return nil, err
	}
	// pre-declared tables start out ACTIVE
	registeredAt := s.now().Add(-opts.ActivationDelay)
	for _, def := range defs {
		if _, ok := s.tables[def.Name]; ok {
			continue
		}
		if _, err := s.createTable(def.CreateTableInput(), registeredAt); err != nil {
			db.Close()
			return nil, fmt.Errorf("register table %s: %w", def.Name, err)
		}
	}
	return s, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

// getTable must be called with s.mu held.
func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil || *tableName == "" {
		return nil, validationError("table name is required")
	}
	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, resourceNotFound("Requested resource not found: Table: %s not found", *tableName)
	}
	return schema, nil
}

// getActiveTable is getTable plus the CREATING check applied to data-plane calls.
func (s *Store) getActiveTable(tableName *string) (*tableSchema, error) {
	schema, err := s.getTable(tableName)
	if err != nil {
		return nil, err
	}
	if !s.active(schema.createdAt) {
		return nil, resourceNotFound("Requested resource not found: Table: %s is being created", aws.ToString(tableName))
	}
	return schema, nil
}

func (s *Store) active(since time.Time) bool {
	return s.opts.ActivationDelay <= 0 || !s.now().Before(since.Add(s.opts.ActivationDelay))
}
