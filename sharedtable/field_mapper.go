package sharedtable

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
)

// fieldMapper rewrites single attribute values. It holds the capability a
// mapping needs from its surroundings (tenant accessor, virtual table name,
// codec) rather than a back-reference to the TableMapping, which keeps the
// dependency one-way.
type fieldMapper struct {
	provider     mtcontext.Provider
	virtualTable string
	codec        prefix.Codec
}

// apply maps a virtual attribute value to its physical form. Context-aware
// fields are stringified and qualified with the current tenant and virtual
// table name; everything else passes through untouched.
func (m fieldMapper) apply(ctx context.Context, fm FieldMapping, av types.AttributeValue) (types.AttributeValue, error) {
	if !fm.ContextAware {
		return av, nil
	}
	raw, err := scalarString(av)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fm.Source.Name, err)
	}
	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	qualified := m.codec.Apply(tenant, m.virtualTable, raw).Qualified
	return &types.AttributeValueMemberS{Value: qualified}, nil
}

// reverse maps a physical attribute value back to virtual form, re-coercing
// the decoded string to the virtual field's declared type. fm must be a
// physical-to-virtual mapping (Target is the virtual field).
func (m fieldMapper) reverse(fm FieldMapping, av types.AttributeValue) (types.AttributeValue, error) {
	if !fm.ContextAware {
		return av, nil
	}
	qualified, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("%w: field %s is %T, want string", prefix.ErrMalformedPrefix, fm.Source.Name, av)
	}
	fv, err := m.codec.Reverse(qualified.Value)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fm.Source.Name, err)
	}
	return scalarValue(fv.Value, fm.Target.Type)
}

// scalarString renders a key-typed attribute value as a string. Binary values
// are base64 encoded so they survive the round trip through the prefix codec.
func scalarString(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return base64.StdEncoding.EncodeToString(v.Value), nil
	default:
		return "", fmt.Errorf("unsupported key attribute type %T", av)
	}
}

// scalarValue re-coerces a decoded string to the declared key type.
func scalarValue(s string, kt metadata.KeyType) (types.AttributeValue, error) {
	switch kt {
	case metadata.KeyTypeN:
		return &types.AttributeValueMemberN{Value: s}, nil
	case metadata.KeyTypeB:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode binary key value: %w", err)
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	default:
		return &types.AttributeValueMemberS{Value: s}, nil
	}
}
