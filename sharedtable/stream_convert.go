package sharedtable

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamstypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// FromStreamsRecord converts a DynamoDB Streams record into router form so it
// can be fed through a stream adapter.
func FromStreamsRecord(rec streamstypes.Record) (Record, error) {
	if rec.Dynamodb == nil {
		return Record{}, fmt.Errorf("stream record %s has no change payload", aws.ToString(rec.EventID))
	}
	keys, err := fromStreamsAttrs(rec.Dynamodb.Keys)
	if err != nil {
		return Record{}, fmt.Errorf("stream record %s keys: %w", aws.ToString(rec.EventID), err)
	}
	newImage, err := fromStreamsAttrs(rec.Dynamodb.NewImage)
	if err != nil {
		return Record{}, fmt.Errorf("stream record %s new image: %w", aws.ToString(rec.EventID), err)
	}
	oldImage, err := fromStreamsAttrs(rec.Dynamodb.OldImage)
	if err != nil {
		return Record{}, fmt.Errorf("stream record %s old image: %w", aws.ToString(rec.EventID), err)
	}
	return Record{
		EventID:        aws.ToString(rec.EventID),
		EventName:      EventName(rec.EventName),
		EventSource:    aws.ToString(rec.EventSource),
		AwsRegion:      aws.ToString(rec.AwsRegion),
		SequenceNumber: aws.ToString(rec.Dynamodb.SequenceNumber),
		Keys:           keys,
		NewImage:       newImage,
		OldImage:       oldImage,
	}, nil
}

func fromStreamsAttrs(attrs map[string]streamstypes.AttributeValue) (Item, error) {
	if attrs == nil {
		return nil, nil
	}
	out := make(Item, len(attrs))
	for name, av := range attrs {
		converted, err := fromStreamsAttr(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = converted
	}
	return out, nil
}

// fromStreamsAttr maps the streams service's attribute value union onto the
// dynamodb service's equivalent.
func fromStreamsAttr(av streamstypes.AttributeValue) (types.AttributeValue, error) {
	switch v := av.(type) {
	case *streamstypes.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberBS:
		return &types.AttributeValueMemberBS{Value: v.Value}, nil
	case *streamstypes.AttributeValueMemberM:
		m := make(map[string]types.AttributeValue, len(v.Value))
		for name, member := range v.Value {
			converted, err := fromStreamsAttr(member)
			if err != nil {
				return nil, err
			}
			m[name] = converted
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case *streamstypes.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(v.Value))
		for i, member := range v.Value {
			converted, err := fromStreamsAttr(member)
			if err != nil {
				return nil, err
			}
			l[i] = converted
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stream attribute value type %T", av)
	}
}
