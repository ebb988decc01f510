package localddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil || params.Item == nil {
		return nil, fmt.Errorf("item is required")
	}
	if params.ConditionExpression != nil {
		return nil, fmt.Errorf("condition expressions are not supported")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	old, err := s.writeItem(ts, params.Item)
	if err != nil {
		return nil, err
	}
	s.captureChange(ts, old, params.Item)

	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("key is required")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := encodeMainKey(ts.desc.Name, ts.desc.Key, params.Key)
	if err != nil {
		return nil, err
	}
	item, err := s.readItem(key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("key is required")
	}
	if params.ConditionExpression != nil {
		return nil, fmt.Errorf("condition expressions are not supported")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	mainKey, err := encodeMainKey(ts.desc.Name, ts.desc.Key, params.Key)
	if err != nil {
		return nil, err
	}
	var old map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		if old, err = readWithin(txn, mainKey); err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		if err := txn.Delete(mainKey); err != nil {
			return err
		}
		for _, idx := range ts.desc.Indexes {
			idxKey, err := encodeIndexKey(ts.desc.Name, idx, old, mainKey)
			if err != nil {
				return err
			}
			if idxKey != nil {
				if err := txn.Delete(idxKey); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	if old != nil {
		s.captureChange(ts, old, nil)
	}

	out := &dynamodb.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

// UpdateItem supports SET and REMOVE update expressions over top-level
// attributes, which covers what the shared-table data plane passes through.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("key is required")
	}
	if params.ConditionExpression != nil {
		return nil, fmt.Errorf("condition expressions are not supported")
	}
	ts, err := s.table(params.TableName)
	if err != nil {
		return nil, err
	}
	mainKey, err := encodeMainKey(ts.desc.Name, ts.desc.Key, params.Key)
	if err != nil {
		return nil, err
	}
	old, err := s.readItem(mainKey)
	if err != nil {
		return nil, err
	}

	item := make(map[string]types.AttributeValue, len(old)+len(params.Key))
	for name, av := range old {
		item[name] = av
	}
	for name, av := range params.Key {
		item[name] = av
	}
	if params.UpdateExpression != nil {
		if err := applyUpdateExpression(item, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}

	if _, err := s.writeItem(ts, item); err != nil {
		return nil, err
	}
	s.captureChange(ts, old, item)

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllOld:
		out.Attributes = old
	case types.ReturnValueAllNew:
		out.Attributes = item
	}
	return out, nil
}

// writeItem stores an item and maintains its secondary index entries,
// returning the previous item if any.
func (s *Store) writeItem(ts *tableState, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	mainKey, err := encodeMainKey(ts.desc.Name, ts.desc.Key, item)
	if err != nil {
		return nil, err
	}
	value, err := serializeItem(item)
	if err != nil {
		return nil, err
	}
	var old map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		if old, err = readWithin(txn, mainKey); err != nil {
			return err
		}
		if err := txn.Set(mainKey, value); err != nil {
			return err
		}
		for _, idx := range ts.desc.Indexes {
			newKey, err := encodeIndexKey(ts.desc.Name, idx, item, mainKey)
			if err != nil {
				return err
			}
			if old != nil {
				oldKey, err := encodeIndexKey(ts.desc.Name, idx, old, mainKey)
				if err != nil {
					return err
				}
				if oldKey != nil && string(oldKey) != string(newKey) {
					if err := txn.Delete(oldKey); err != nil {
						return err
					}
				}
			}
			if newKey != nil {
				if err := txn.Set(newKey, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write item: %w", err)
	}
	return old, nil
}

func (s *Store) readItem(key []byte) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = readWithin(txn, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	return item, nil
}

func readWithin(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = entry.Value(func(val []byte) error {
		item, err = deserializeItem(val)
		return err
	})
	return item, err
}
