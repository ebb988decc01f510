package localddb

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/metadata"
)

// Key layout, chosen so main rows and index rows live in disjoint, prefix
// scannable keyspaces of one BadgerDB:
//
//	main:  <table> 0x00 <hash> 0x00 [<range>]
//	index: <table> "$idx:" <index> 0x00 <hash> 0x00 [<range> 0x00] <main key>
//
// The 0x00 separator is escaped out of key segments. Index rows append the
// encoded main key because index keys need not be unique. Key attributes are
// restricted to type S: every physical key in this system is a string.

const keySeparator byte = 0x00

const indexMarker = "$idx:"

func mainKeyPrefix(table string) []byte {
	return append([]byte(table), keySeparator)
}

func indexKeyPrefix(table, index string) []byte {
	return append([]byte(table+indexMarker+index), keySeparator)
}

// encodeMainKey encodes an item's primary key for the main keyspace.
func encodeMainKey(table string, key metadata.PrimaryKey, item map[string]types.AttributeValue) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(mainKeyPrefix(table))
	if err := appendKeyValue(&buf, key.HashKey, item); err != nil {
		return nil, err
	}
	buf.WriteByte(keySeparator)
	if key.HasRangeKey() {
		if err := appendKeyValue(&buf, key.RangeKey, item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// encodeIndexKey encodes an item's entry in a secondary index keyspace, or
// nil when the item lacks the index's key attributes (sparse index).
func encodeIndexKey(table string, idx metadata.SecondaryIndex, item map[string]types.AttributeValue, mainKey []byte) ([]byte, error) {
	if _, ok := item[idx.Key.HashKey]; !ok {
		return nil, nil
	}
	if idx.Key.HasRangeKey() {
		if _, ok := item[idx.Key.RangeKey]; !ok {
			return nil, nil
		}
	}
	var buf bytes.Buffer
	buf.Write(indexKeyPrefix(table, idx.Name))
	if err := appendKeyValue(&buf, idx.Key.HashKey, item); err != nil {
		return nil, err
	}
	buf.WriteByte(keySeparator)
	if idx.Key.HasRangeKey() {
		if err := appendKeyValue(&buf, idx.Key.RangeKey, item); err != nil {
			return nil, err
		}
		buf.WriteByte(keySeparator)
	}
	buf.Write(mainKey)
	return buf.Bytes(), nil
}

// indexHashPrefix returns the scan prefix for one index hash-key value.
func indexHashPrefix(table string, idx metadata.SecondaryIndex, hash string) []byte {
	var buf bytes.Buffer
	buf.Write(indexKeyPrefix(table, idx.Name))
	buf.Write(escapeBytes([]byte(hash)))
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// mainHashPrefix returns the scan prefix for one table hash-key value.
func mainHashPrefix(table string, hash string) []byte {
	var buf bytes.Buffer
	buf.Write(mainKeyPrefix(table))
	buf.Write(escapeBytes([]byte(hash)))
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func appendKeyValue(buf *bytes.Buffer, attr string, item map[string]types.AttributeValue) error {
	av, ok := item[attr]
	if !ok {
		return fmt.Errorf("key attribute %q not found", attr)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("key attribute %q must be of type S, got %T", attr, av)
	}
	buf.Write(escapeBytes([]byte(s.Value)))
	return nil
}

// escapeBytes escapes separator bytes inside key segments: 0x00 becomes
// 0x01 0x01 and 0x01 becomes 0x01 0x02.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// Item values are stored gob-encoded through a tagged union that covers the
// attribute value types the data plane moves.

type storedAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register(map[string]storedAV{})
	gob.Register([]storedAV{})
	gob.Register([]string{})
	gob.Register([][]byte{})
}

func serializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	stored := make(map[string]storedAV, len(item))
	for name, av := range item {
		sav, err := toStored(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		stored[name] = sav
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var stored map[string]storedAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := make(map[string]types.AttributeValue, len(stored))
	for name, sav := range stored {
		av, err := fromStored(sav)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		item[name] = av
	}
	return item, nil
}

func toStored(av types.AttributeValue) (storedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAV{Type: "S", Value: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAV{Type: "N", Value: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAV{Type: "B", Value: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAV{Type: "BOOL", Value: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAV{Type: "NULL", Value: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAV{Type: "SS", Value: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAV{Type: "NS", Value: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAV{Type: "BS", Value: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedAV, len(v.Value))
		for name, member := range v.Value {
			sav, err := toStored(member)
			if err != nil {
				return storedAV{}, err
			}
			m[name] = sav
		}
		return storedAV{Type: "M", Value: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedAV, len(v.Value))
		for i, member := range v.Value {
			sav, err := toStored(member)
			if err != nil {
				return storedAV{}, err
			}
			l[i] = sav
		}
		return storedAV{Type: "L", Value: l}, nil
	default:
		return storedAV{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromStored(sav storedAV) (types.AttributeValue, error) {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: sav.Value.(string)}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sav.Value.(string)}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sav.Value.([]byte)}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sav.Value.(bool)}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: sav.Value.(bool)}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sav.Value.([]string)}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sav.Value.([]string)}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sav.Value.([][]byte)}, nil
	case "M":
		stored := sav.Value.(map[string]storedAV)
		m := make(map[string]types.AttributeValue, len(stored))
		for name, member := range stored {
			av, err := fromStored(member)
			if err != nil {
				return nil, err
			}
			m[name] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		stored := sav.Value.([]storedAV)
		l := make([]types.AttributeValue, len(stored))
		for i, member := range stored {
			av, err := fromStored(member)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored attribute type %q", sav.Type)
	}
}
