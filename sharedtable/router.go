package sharedtable

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/ddbiface"
	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
	"github.com/dynashard/dynashard/repo"
)

// Router is the shared-table data and control plane. It dispatches each
// tenant operation against the shared physical tables after rewriting the
// request, and decodes responses on the way back. Safe for concurrent use
// across tenants and tables.
type Router struct {
	name     string
	backend  ddbiface.Client
	provider mtcontext.Provider
	metadata repo.MetadataRepo
	factory  *MappingFactory
	cache    *mappingCache
	codec    prefix.Codec

	truncateOnDeleteTable bool
	deleteTableAsync      bool
}

var _ ddbiface.Client = (*Router)(nil)

func (r *Router) String() string {
	return r.name
}

// CreateTable persists the virtual table description. The physical table is
// not touched here; it is precreated or lazily created by the mapping
// factory on first data-plane access.
func (r *Router) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	desc, err := metadata.FromCreateTableInput(params)
	if err != nil {
		return nil, err
	}
	stored, err := r.metadata.CreateTable(ctx, desc)
	if err != nil {
		return nil, err
	}
	return &dynamodb.CreateTableOutput{TableDescription: stored.ToTableDescription()}, nil
}

// DescribeTable returns the virtual description. Virtual tables have no
// provisioning lifecycle of their own, so the status is always ACTIVE.
func (r *Router) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	desc, err := r.metadata.TableDescription(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	desc.Status = types.TableStatusActive
	return &dynamodb.DescribeTableOutput{Table: desc.ToTableDescription()}, nil
}

// DeleteTable removes the virtual table, optionally truncating its rows
// first. With the async option the work happens on a background worker and
// the synchronous result carries the pre-delete description.
func (r *Router) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	name := aws.ToString(params.TableName)
	if !r.deleteTableAsync {
		return r.deleteTableInternal(ctx, name)
	}
	desc, err := r.metadata.TableDescription(ctx, name)
	if err != nil {
		return nil, err
	}
	go func(ctx context.Context) {
		if _, err := r.deleteTableInternal(ctx, name); err != nil {
			log.Printf("async delete of table=%s failed: %v", name, err)
		}
	}(context.WithoutCancel(ctx))
	return &dynamodb.DeleteTableOutput{TableDescription: desc.ToTableDescription()}, nil
}

func (r *Router) deleteTableInternal(ctx context.Context, name string) (*dynamodb.DeleteTableOutput, error) {
	log.Printf("dropping table=%s", name)
	if err := r.truncateTable(ctx, name); err != nil {
		return nil, err
	}
	desc, err := r.metadata.DeleteTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if tenant, terr := r.provider.Tenant(ctx); terr == nil {
		r.cache.drop(cacheKey{tenant: tenant, table: name})
	}
	log.Printf("dropped table=%s", name)
	return &dynamodb.DeleteTableOutput{TableDescription: desc.ToTableDescription()}, nil
}

// truncateTable deletes every row of the current tenant's virtual table by
// scanning under its scope and issuing one delete per row.
func (r *Router) truncateTable(ctx context.Context, name string) error {
	if !r.truncateOnDeleteTable {
		log.Printf("truncateOnDeleteTable is disabled for table=%s, skipping truncation", name)
		return nil
	}
	desc, err := r.metadata.TableDescription(ctx, name)
	if err != nil {
		return err
	}
	var startKey map[string]types.AttributeValue
	deleted := 0
	for {
		out, err := r.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(name),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("truncate scan of table %s: %w", name, err)
		}
		for _, item := range out.Items {
			key := make(Item)
			for _, attr := range desc.KeyAttributes() {
				key[attr] = item[attr]
			}
			if _, err := r.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(name),
				Key:       key,
			}); err != nil {
				return fmt.Errorf("truncate delete from table %s: %w", name, err)
			}
			deleted++
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	log.Printf("truncated %d items from table=%s", deleted, name)
	return nil
}

func (r *Router) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	req.TableName = aws.String(mapping.Physical().Name)
	if req.Key, err = mapping.ItemMapper().Apply(ctx, params.Key); err != nil {
		return nil, err
	}
	out, err := r.backend.GetItem(ctx, &req, optFns...)
	if err != nil {
		return nil, err
	}
	if out.Item != nil {
		if out.Item, err = mapping.ItemMapper().Reverse(out.Item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Router) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	req.TableName = aws.String(mapping.Physical().Name)
	if req.Item, err = mapping.ItemMapper().Apply(ctx, params.Item); err != nil {
		return nil, err
	}
	return r.backend.PutItem(ctx, &req, optFns...)
}

func (r *Router) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	req.TableName = aws.String(mapping.Physical().Name)
	if req.Key, err = mapping.ItemMapper().Apply(ctx, params.Key); err != nil {
		return nil, err
	}
	return r.backend.DeleteItem(ctx, &req, optFns...)
}

// UpdateItem rewrites the table name and key. Attribute updates and condition
// expressions pass through unmodified.
func (r *Router) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	req.TableName = aws.String(mapping.Physical().Name)
	if req.Key, err = mapping.ItemMapper().Apply(ctx, params.Key); err != nil {
		return nil, err
	}
	return r.backend.UpdateItem(ctx, &req, optFns...)
}

func (r *Router) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	if err := mapping.QueryMapper().ApplyToQuery(ctx, &req); err != nil {
		return nil, err
	}
	out, err := r.backend.Query(ctx, &req, optFns...)
	if err != nil {
		return nil, err
	}
	if err := r.reverseItems(mapping, out.Items); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	mapping, err := r.tableMapping(ctx, aws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	req := *params
	if err := mapping.QueryMapper().ApplyToScan(ctx, &req); err != nil {
		return nil, err
	}
	out, err := r.backend.Scan(ctx, &req, optFns...)
	if err != nil {
		return nil, err
	}
	if err := r.reverseItems(mapping, out.Items); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) reverseItems(mapping *TableMapping, items []Item) error {
	for i, item := range items {
		reversed, err := mapping.ItemMapper().Reverse(item)
		if err != nil {
			return err
		}
		items[i] = reversed
	}
	return nil
}

// ListStreams enumerates the streams of physical tables serving cached
// mappings, one handle per physical table, each wrapping the caller's
// processor factory in a relabeling adapter.
func (r *Router) ListStreams(factory RecordProcessorFactory) []StreamDescription {
	seen := make(map[string]bool)
	var streams []StreamDescription
	for _, mapping := range r.cache.mappings() {
		physical := mapping.Physical()
		if !physical.StreamEnabled() || seen[physical.Name] {
			continue
		}
		seen[physical.Name] = true
		streams = append(streams, StreamDescription{
			Label:   physical.Name,
			Arn:     physical.Stream.Arn,
			Factory: r.newAdapterFactory(factory, physical),
		})
	}
	return streams
}

func (r *Router) newAdapterFactory(factory RecordProcessorFactory, physical metadata.TableDescription) RecordProcessorFactory {
	return func() RecordProcessor {
		return &recordAdapter{router: r, physical: physical, inner: factory()}
	}
}

// tableMapping resolves the mapping for the current tenant's virtual table,
// building and caching it on first access.
func (r *Router) tableMapping(ctx context.Context, virtualTableName string) (*TableMapping, error) {
	tenant, err := r.provider.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey{tenant: tenant, table: virtualTableName}
	return r.cache.getOrCompute(ctx, key, func(ctx context.Context) (*TableMapping, error) {
		desc, err := r.metadata.TableDescription(ctx, virtualTableName)
		if err != nil {
			return nil, err
		}
		return r.factory.TableMapping(ctx, desc)
	})
}
