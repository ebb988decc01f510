package localddb

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"

	"github.com/dynashard/dynashard/metadata"
)

func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}

	prefix := mainKeyPrefix(ts.desc.Name)
	if params.IndexName != nil {
		idx, ok := ts.desc.Index(*params.IndexName)
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("index not found: " + *params.IndexName)}
		}
		prefix = indexKeyPrefix(ts.desc.Name, idx.Name)
	}

	var startKey []byte
	if params.ExclusiveStartKey != nil {
		if params.IndexName != nil {
			return nil, fmt.Errorf("index scan pagination is not supported")
		}
		if startKey, err = encodeMainKey(ts.desc.Name, ts.desc.Key, params.ExclusiveStartKey); err != nil {
			return nil, fmt.Errorf("exclusive start key: %w", err)
		}
	}

	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	var items []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue
	scanned := 0

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		if startKey != nil {
			it.Seek(startKey)
			if it.Valid() && bytes.Equal(it.Item().Key(), startKey) {
				it.Next()
			}
		} else {
			it.Seek(prefix)
		}

		for ; it.Valid(); it.Next() {
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			scanned++

			if params.FilterExpression != nil {
				match, err := evalFilter(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
				if err != nil {
					return fmt.Errorf("evaluate filter: %w", err)
				}
				if !match {
					continue
				}
			}
			items = append(items, item)

			if limit > 0 && len(items) >= limit {
				lastKey = extractKeyAttributes(item, ts.desc.Key)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.ScanOutput{
		Items:            items,
		Count:            int32(len(items)),
		ScannedCount:     int32(scanned),
		LastEvaluatedKey: lastKey,
	}, nil
}

func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}

	keySchema := ts.desc.Key
	var index *metadata.SecondaryIndex
	if params.IndexName != nil {
		idx, ok := ts.desc.Index(*params.IndexName)
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("index not found: " + *params.IndexName)}
		}
		index = &idx
		keySchema = idx.Key
	}

	conds, err := keyEqualities(params)
	if err != nil {
		return nil, err
	}
	hashAV, ok := conds[keySchema.HashKey]
	if !ok {
		return nil, fmt.Errorf("query requires an equality condition on %s", keySchema.HashKey)
	}
	hashS, ok := hashAV.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("hash key %s must be of type S", keySchema.HashKey)
	}
	var rangeAV types.AttributeValue
	if keySchema.HasRangeKey() {
		rangeAV = conds[keySchema.RangeKey]
	}

	prefix := mainHashPrefix(ts.desc.Name, hashS.Value)
	if index != nil {
		prefix = indexHashPrefix(ts.desc.Name, *index, hashS.Value)
	}

	var items []map[string]types.AttributeValue
	scanned := 0
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.Valid(); it.Next() {
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
			scanned++
			if rangeAV != nil && !attributeEqual(item[keySchema.RangeKey], rangeAV) {
				continue
			}
			if params.FilterExpression != nil {
				match, err := evalFilter(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
				if err != nil {
					return fmt.Errorf("evaluate filter: %w", err)
				}
				if !match {
					continue
				}
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dynamodb.QueryOutput{
		Items:        items,
		Count:        int32(len(items)),
		ScannedCount: int32(scanned),
	}, nil
}

// keyEqualities extracts the equality conditions of a query from either the
// expression or the legacy KeyConditions form.
func keyEqualities(params *dynamodb.QueryInput) (map[string]types.AttributeValue, error) {
	conds := make(map[string]types.AttributeValue)
	for name, cond := range params.KeyConditions {
		if cond.ComparisonOperator != types.ComparisonOperatorEq || len(cond.AttributeValueList) != 1 {
			return nil, fmt.Errorf("only EQ key conditions are supported, got %s on %s", cond.ComparisonOperator, name)
		}
		conds[name] = cond.AttributeValueList[0]
	}
	if params.KeyConditionExpression == nil {
		return conds, nil
	}
	for _, clause := range splitConjunction(*params.KeyConditionExpression) {
		parts := strings.Fields(strings.ReplaceAll(clause, "=", " = "))
		if len(parts) != 3 || parts[1] != "=" {
			return nil, fmt.Errorf("unsupported key condition %q", clause)
		}
		name, err := resolveName(parts[0], params.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}
		value, err := resolveValue(parts[2], params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		conds[name] = value
	}
	return conds, nil
}

func extractKeyAttributes(item map[string]types.AttributeValue, key metadata.PrimaryKey) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{
		key.HashKey: item[key.HashKey],
	}
	if key.HasRangeKey() {
		out[key.RangeKey] = item[key.RangeKey]
	}
	return out
}
