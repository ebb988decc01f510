package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/admin"
	"github.com/dynashard/dynashard/ddbiface"
	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
)

// DefaultMetadataTableName is the physical table the DynamoDB-backed repo
// keeps descriptions in unless configured otherwise.
const DefaultMetadataTableName = "_dynashard_metadata"

const metadataHashKey = "table_name"

// DynamoDB stores virtual table descriptions in a dedicated table on the same
// backend that holds the shared data tables. Row keys are the virtual table
// name qualified with the owning tenant, so tenants cannot observe each
// other's schemas.
type DynamoDB struct {
	client    ddbiface.Client
	provider  mtcontext.Provider
	delimiter string
	tableName string
	admin     *admin.Admin

	ensureMu sync.Mutex
	ensured  bool
}

// DynamoDBOption configures a DynamoDB repo.
type DynamoDBOption func(*DynamoDB)

// WithMetadataTableName overrides the metadata table name.
func WithMetadataTableName(name string) DynamoDBOption {
	return func(r *DynamoDB) { r.tableName = name }
}

// WithDelimiter overrides the delimiter separating the tenant from the table
// name in row keys. It must match the router's delimiter.
func WithDelimiter(delimiter string) DynamoDBOption {
	return func(r *DynamoDB) { r.delimiter = delimiter }
}

// WithPollInterval overrides how often the repo polls while waiting for its
// metadata table to become active.
func WithPollInterval(interval time.Duration) DynamoDBOption {
	return func(r *DynamoDB) { r.admin = admin.New(r.client, interval) }
}

func NewDynamoDB(client ddbiface.Client, provider mtcontext.Provider, opts ...DynamoDBOption) *DynamoDB {
	r := &DynamoDB{
		client:    client,
		provider:  provider,
		delimiter: prefix.DefaultDelimiter,
		tableName: DefaultMetadataTableName,
		admin:     admin.New(client, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type metadataRecord struct {
	TableName   string                    `dynamodbav:"table_name"`
	Description metadata.TableDescription `dynamodbav:"description"`
}

func (r *DynamoDB) CreateTable(ctx context.Context, desc metadata.TableDescription) (metadata.TableDescription, error) {
	key, err := r.rowKey(ctx, desc.Name)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return metadata.TableDescription{}, err
	}
	item, err := attributevalue.MarshalMap(metadataRecord{TableName: key, Description: desc})
	if err != nil {
		return metadata.TableDescription{}, fmt.Errorf("marshal description for %s: %w", desc.Name, err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return metadata.TableDescription{}, fmt.Errorf("persist description for %s: %w", desc.Name, err)
	}
	return desc, nil
}

func (r *DynamoDB) TableDescription(ctx context.Context, name string) (metadata.TableDescription, error) {
	key, err := r.rowKey(ctx, name)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return metadata.TableDescription{}, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			metadataHashKey: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return metadata.TableDescription{}, fmt.Errorf("load description for %s: %w", name, err)
	}
	if len(out.Item) == 0 {
		return metadata.TableDescription{}, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	var rec metadataRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return metadata.TableDescription{}, fmt.Errorf("unmarshal description for %s: %w", name, err)
	}
	return rec.Description, nil
}

func (r *DynamoDB) DeleteTable(ctx context.Context, name string) (metadata.TableDescription, error) {
	desc, err := r.TableDescription(ctx, name)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	key, err := r.rowKey(ctx, name)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			metadataHashKey: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return metadata.TableDescription{}, fmt.Errorf("delete description for %s: %w", name, err)
	}
	return desc, nil
}

func (r *DynamoDB) ListTables(ctx context.Context) ([]metadata.TableDescription, error) {
	tenant, err := r.provider.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	expr, err := expression.NewBuilder().
		WithFilter(expression.BeginsWith(expression.Name(metadataHashKey), tenant+r.delimiter)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build list filter: %w", err)
	}

	var descs []metadata.TableDescription
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("list tables for tenant %s: %w", tenant, err)
		}
		for _, item := range out.Items {
			var rec metadataRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal description: %w", err)
			}
			descs = append(descs, rec.Description)
		}
		if out.LastEvaluatedKey == nil {
			return descs, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (r *DynamoDB) rowKey(ctx context.Context, name string) (string, error) {
	tenant, err := r.provider.Tenant(ctx)
	if err != nil {
		return "", err
	}
	return tenant + r.delimiter + name, nil
}

func (r *DynamoDB) ensureTable(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.ensured {
		return nil
	}
	_, err := r.admin.CreateTableIfNotExists(ctx, metadata.TableDescription{
		Name: r.tableName,
		Key: metadata.PrimaryKey{
			HashKey:     metadataHashKey,
			HashKeyType: metadata.KeyTypeS,
		},
	})
	if err != nil {
		return fmt.Errorf("ensure metadata table %s: %w", r.tableName, err)
	}
	r.ensured = true
	return nil
}
