// Package localddb is an in-process DynamoDB implementation backed by
// BadgerDB. It implements ddbiface.Client for the operation subset the
// shared-table router dispatches, plus change capture that emits DynamoDB
// Streams records for tables with streaming enabled. It backs the test suite
// and local development; it is not a complete DynamoDB.
package localddb

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamstypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dynashard/dynashard/ddbiface"
	"github.com/dynashard/dynashard/metadata"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	tables map[string]*tableState
}

type tableState struct {
	desc      metadata.TableDescription
	streamSeq int64
	stream    []streamstypes.Record
}

var _ ddbiface.Client = (*Store)(nil)

// Options configures the store.
type Options struct {
	// Path to the database directory. Empty means in-memory.
	Path string
}

// New opens a store and registers the given table definitions.
func New(opts Options, defs ...metadata.TableDescription) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	s := &Store{
		db:     db,
		tables: make(map[string]*tableState),
	}
	for _, def := range defs {
		def.Status = types.TableStatusActive
		s.tables[def.Name] = &tableState{desc: withStreamArn(def)}
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	desc, err := metadata.FromCreateTableInput(params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[desc.Name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("table already exists: " + desc.Name)}
	}
	desc.Status = types.TableStatusActive
	desc = withStreamArn(desc)
	s.tables[desc.Name] = &tableState{desc: desc}
	return &dynamodb.CreateTableOutput{TableDescription: desc.ToTableDescription()}, nil
}

func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: ts.desc.ToTableDescription()}, nil
}

func (s *Store) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	name := ts.desc.Name
	if err := s.db.DropPrefix(mainKeyPrefix(name), []byte(name+indexMarker)); err != nil {
		return nil, fmt.Errorf("drop table %s data: %w", name, err)
	}
	s.mu.Lock()
	delete(s.tables, name)
	s.mu.Unlock()
	return &dynamodb.DeleteTableOutput{TableDescription: ts.desc.ToTableDescription()}, nil
}

// StreamRecords returns the change records captured for a table, in commit
// order. Only populated for tables with streaming enabled.
func (s *Store) StreamRecords(tableName string) []streamstypes.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]streamstypes.Record, len(ts.stream))
	copy(out, ts.stream)
	return out
}

func (s *Store) table(tableName *string) (*tableState, error) {
	if tableName == nil {
		return nil, fmt.Errorf("table name is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.tables[*tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + *tableName)}
	}
	return ts, nil
}

func withStreamArn(desc metadata.TableDescription) metadata.TableDescription {
	if desc.StreamEnabled() && desc.Stream.Arn == "" {
		stream := *desc.Stream
		stream.Arn = fmt.Sprintf("arn:aws:dynamodb:local:000000000000:table/%s/stream/%s", desc.Name, uuid.NewString())
		desc.Stream = &stream
	}
	return desc
}
