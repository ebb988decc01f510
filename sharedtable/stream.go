package sharedtable

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/prefix"
)

// EventName classifies a change-capture record.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// Record is one change-capture record in router form. The adapter fills
// Tenant and TableName and rewrites Keys and the images to virtual names.
type Record struct {
	EventID        string
	EventName      EventName
	EventSource    string
	AwsRegion      string
	SequenceNumber string

	// Tenant and TableName label the record with the virtual table it
	// belongs to, recovered from the physical hash-key prefix.
	Tenant    string
	TableName string

	Keys     Item
	NewImage Item
	OldImage Item
}

// RecordProcessor consumes change-capture records. Implementations are
// tenant-oblivious: the adapter hands them records already relabeled and
// reverse-mapped.
type RecordProcessor interface {
	ProcessRecords(ctx context.Context, records []Record) error
	// Shutdown is invoked when the stream consumer stops; it passes straight
	// through the adapter.
	Shutdown(ctx context.Context) error
}

// RecordProcessorFactory creates one processor per stream shard or worker.
type RecordProcessorFactory func() RecordProcessor

// StreamDescription is one consumable stream handle: a physical table's
// stream with a factory producing relabeling processors around the caller's.
type StreamDescription struct {
	Label   string
	Arn     string
	Factory RecordProcessorFactory
}

// recordAdapter wraps a downstream processor, translating each record from
// physical to virtual form before handing it on. Decode failures surface as
// processing errors; records are never silently dropped.
type recordAdapter struct {
	router   *Router
	physical metadata.TableDescription
	inner    RecordProcessor
}

func (a *recordAdapter) ProcessRecords(ctx context.Context, records []Record) error {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		mapped, err := a.router.relabelRecord(ctx, a.physical, rec)
		if err != nil {
			return fmt.Errorf("relabel stream record %s: %w", rec.EventID, err)
		}
		out = append(out, mapped)
	}
	return a.inner.ProcessRecords(ctx, out)
}

func (a *recordAdapter) Shutdown(ctx context.Context) error {
	return a.inner.Shutdown(ctx)
}

// relabelRecord recovers the tenant and virtual table from the record's
// physical hash key, then reverses the keys and images under that tenant's
// table mapping. The tenant override lives only in the derived context.
func (r *Router) relabelRecord(ctx context.Context, physical metadata.TableDescription, rec Record) (Record, error) {
	av, ok := rec.Keys[physical.Key.HashKey]
	if !ok {
		return Record{}, fmt.Errorf("%w: record carries no %s key", prefix.ErrMalformedPrefix, physical.Key.HashKey)
	}
	qualified, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s key is %T, want string", prefix.ErrMalformedPrefix, physical.Key.HashKey, av)
	}
	fv, err := r.codec.Reverse(qualified.Value)
	if err != nil {
		return Record{}, err
	}

	tenantCtx := r.provider.WithTenant(ctx, fv.Tenant)
	mapping, err := r.tableMapping(tenantCtx, fv.Table)
	if err != nil {
		return Record{}, err
	}

	items := mapping.ItemMapper()
	if rec.Keys, err = items.Reverse(rec.Keys); err != nil {
		return Record{}, err
	}
	if rec.NewImage, err = items.Reverse(rec.NewImage); err != nil {
		return Record{}, err
	}
	if rec.OldImage, err = items.Reverse(rec.OldImage); err != nil {
		return Record{}, err
	}
	rec.Tenant = fv.Tenant
	rec.TableName = fv.Table
	return rec, nil
}
