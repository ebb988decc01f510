package sharedtable

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is an attribute map, the unit of the item data plane.
type Item = map[string]types.AttributeValue

// ItemMapper rewrites whole items between their virtual and physical forms.
type ItemMapper struct {
	mapping *TableMapping
	fields  fieldMapper
}

// Apply maps a virtual item (or key) to physical form. Mapped attributes are
// renamed to their targets and context-aware values qualified; a virtual
// field feeding several physical fields is emitted once per target, each
// independently encoded. Unmapped attributes pass through unchanged.
func (m *ItemMapper) Apply(ctx context.Context, item Item) (Item, error) {
	if item == nil {
		return nil, nil
	}
	out := make(Item, len(item))
	for name, av := range item {
		mappings := m.mapping.virtualToPhysical[name]
		if len(mappings) == 0 {
			out[name] = av
			continue
		}
		for _, fm := range mappings {
			mapped, err := m.fields.apply(ctx, fm, av)
			if err != nil {
				return nil, err
			}
			out[fm.Target.Name] = mapped
		}
	}
	return out, nil
}

// Reverse maps a physical item back to virtual form. Absent or empty input is
// returned as is.
func (m *ItemMapper) Reverse(item Item) (Item, error) {
	if len(item) == 0 {
		return item, nil
	}
	out := make(Item, len(item))
	for name, av := range item {
		mappings := m.mapping.physicalToVirtual[name]
		if len(mappings) == 0 {
			out[name] = av
			continue
		}
		for _, fm := range mappings {
			reversed, err := m.fields.reverse(fm, av)
			if err != nil {
				return nil, err
			}
			out[fm.Target.Name] = reversed
		}
	}
	return out, nil
}
