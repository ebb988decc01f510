package localddb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamstypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/google/uuid"
)

// captureChange appends a change record to the table's stream buffer when
// streaming is enabled. old is nil on insert, updated is nil on remove.
func (s *Store) captureChange(ts *tableState, old, updated map[string]types.AttributeValue) {
	if !ts.desc.StreamEnabled() {
		return
	}

	eventName := streamstypes.OperationTypeModify
	keySource := updated
	switch {
	case old == nil:
		eventName = streamstypes.OperationTypeInsert
	case updated == nil:
		eventName = streamstypes.OperationTypeRemove
		keySource = old
	}
	keys := extractKeyAttributes(keySource, ts.desc.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	ts.streamSeq++
	ts.stream = append(ts.stream, streamstypes.Record{
		EventID:     aws.String(uuid.NewString()),
		EventName:   eventName,
		EventSource: aws.String("aws:dynamodb"),
		AwsRegion:   aws.String("local"),
		Dynamodb: &streamstypes.StreamRecord{
			SequenceNumber: aws.String(fmt.Sprintf("%020d", ts.streamSeq)),
			StreamViewType: streamstypes.StreamViewType(ts.desc.Stream.ViewType),
			Keys:           toStreamsAttrs(keys),
			NewImage:       toStreamsAttrs(updated),
			OldImage:       toStreamsAttrs(old),
		},
	})
}

func toStreamsAttrs(item map[string]types.AttributeValue) map[string]streamstypes.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]streamstypes.AttributeValue, len(item))
	for name, av := range item {
		out[name] = toStreamsAttr(av)
	}
	return out
}

// toStreamsAttr maps the dynamodb service's attribute value union onto the
// streams service's equivalent.
func toStreamsAttr(av types.AttributeValue) streamstypes.AttributeValue {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return &streamstypes.AttributeValueMemberS{Value: v.Value}
	case *types.AttributeValueMemberN:
		return &streamstypes.AttributeValueMemberN{Value: v.Value}
	case *types.AttributeValueMemberB:
		return &streamstypes.AttributeValueMemberB{Value: v.Value}
	case *types.AttributeValueMemberBOOL:
		return &streamstypes.AttributeValueMemberBOOL{Value: v.Value}
	case *types.AttributeValueMemberNULL:
		return &streamstypes.AttributeValueMemberNULL{Value: v.Value}
	case *types.AttributeValueMemberSS:
		return &streamstypes.AttributeValueMemberSS{Value: v.Value}
	case *types.AttributeValueMemberNS:
		return &streamstypes.AttributeValueMemberNS{Value: v.Value}
	case *types.AttributeValueMemberBS:
		return &streamstypes.AttributeValueMemberBS{Value: v.Value}
	case *types.AttributeValueMemberM:
		m := make(map[string]streamstypes.AttributeValue, len(v.Value))
		for name, member := range v.Value {
			m[name] = toStreamsAttr(member)
		}
		return &streamstypes.AttributeValueMemberM{Value: m}
	case *types.AttributeValueMemberL:
		l := make([]streamstypes.AttributeValue, len(v.Value))
		for i, member := range v.Value {
			l[i] = toStreamsAttr(member)
		}
		return &streamstypes.AttributeValueMemberL{Value: l}
	default:
		panic(fmt.Sprintf("unsupported attribute value type %T", av))
	}
}
