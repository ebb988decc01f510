package sharedtable

import (
	"context"
	"errors"
	"time"

	"github.com/dynashard/dynashard/admin"
	"github.com/dynashard/dynashard/ddbiface"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
	"github.com/dynashard/dynashard/repo"
)

// Option is a functional option for configuring a [Router].
type Option func(*Options)

// Options holds the router configuration. Use [Option] functions to override
// the defaults.
type Options struct {
	delimiter             string
	provider              mtcontext.Provider
	metadata              repo.MetadataRepo
	tables                CreateTableRequestFactory
	indexMapper           SecondaryIndexMapper
	precreateTables       bool
	truncateOnDeleteTable bool
	deleteTableAsync      bool
	pollInterval          time.Duration
}

func newOptions() *Options {
	return &Options{
		delimiter:   prefix.DefaultDelimiter,
		provider:    mtcontext.ContextProvider{},
		indexMapper: ByTypeIndexMapper{},
	}
}

func (o *Options) validate() error {
	if o.tables == nil {
		return errors.New("a create-table request factory is required")
	}
	if o.delimiter == "" {
		return errors.New("delimiter must not be empty")
	}
	return nil
}

// WithDelimiter sets the prefix delimiter. It must not occur in tenant ids or
// virtual table names. The default is ".".
func WithDelimiter(delimiter string) Option {
	return func(o *Options) { o.delimiter = delimiter }
}

// WithContextProvider sets the tenant context provider. The default reads the
// tenant from the operation's context.
func WithContextProvider(provider mtcontext.Provider) Option {
	return func(o *Options) { o.provider = provider }
}

// WithMetadataRepo sets the store of virtual table descriptions. The default
// is an in-memory repo; production deployments typically use repo.DynamoDB.
func WithMetadataRepo(metadata repo.MetadataRepo) Option {
	return func(o *Options) { o.metadata = metadata }
}

// WithCreateTableRequestFactory sets the physical template factory. Required.
func WithCreateTableRequestFactory(tables CreateTableRequestFactory) Option {
	return func(o *Options) { o.tables = tables }
}

// WithSecondaryIndexMapper sets how virtual secondary indexes pick their
// physical counterparts. The default matches by kind in declaration order.
func WithSecondaryIndexMapper(mapper SecondaryIndexMapper) Option {
	return func(o *Options) { o.indexMapper = mapper }
}

// WithPrecreateTables creates every physical template table eagerly during
// New. Precreation runs without tenant context.
func WithPrecreateTables(precreate bool) Option {
	return func(o *Options) { o.precreateTables = precreate }
}

// WithTruncateOnDeleteTable makes DeleteTable remove the tenant's rows before
// dropping the virtual description. Deleting and recreating a table without
// truncation may resurface old rows.
func WithTruncateOnDeleteTable(truncate bool) Option {
	return func(o *Options) { o.truncateOnDeleteTable = truncate }
}

// WithDeleteTableAsync moves truncation and metadata removal to a background
// worker; DeleteTable returns the pre-delete description immediately.
func WithDeleteTableAsync(async bool) Option {
	return func(o *Options) { o.deleteTableAsync = async }
}

// WithPollInterval sets how often physical table creation polls for the table
// to become active.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Options) { o.pollInterval = interval }
}

// New builds a shared-table Router over the given backend client.
func New(ctx context.Context, name string, backend ddbiface.Client, opts ...Option) (*Router, error) {
	if backend == nil {
		return nil, errors.New("a backend client is required")
	}
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.metadata == nil {
		o.metadata = repo.NewMemory(o.provider)
	}

	codec := prefix.NewCodec(o.delimiter)
	factory := newMappingFactory(o.tables, o.provider, o.indexMapper, codec, admin.New(backend, o.pollInterval))
	r := &Router{
		name:                  name,
		backend:               backend,
		provider:              o.provider,
		metadata:              o.metadata,
		factory:               factory,
		cache:                 newMappingCache(),
		codec:                 codec,
		truncateOnDeleteTable: o.truncateOnDeleteTable,
		deleteTableAsync:      o.deleteTableAsync,
	}
	if o.precreateTables {
		if err := factory.Precreate(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}
