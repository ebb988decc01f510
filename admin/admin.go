// Package admin provides control-plane helpers for physical tables: creating
// a table when it does not exist and waiting for it to become active.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynashard/dynashard/ddbiface"
	"github.com/dynashard/dynashard/metadata"
)

// DefaultPollInterval is how often table status is re-checked while waiting
// for a freshly created table to become active.
const DefaultPollInterval = 5 * time.Second

// Admin wraps a backend client with table-administration helpers.
type Admin struct {
	client       ddbiface.Client
	pollInterval time.Duration
}

func New(client ddbiface.Client, pollInterval time.Duration) *Admin {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Admin{client: client, pollInterval: pollInterval}
}

// CreateTableIfNotExists ensures the described table exists and is active,
// then returns the backend's description of it. The returned description
// carries backend-assigned fields such as the latest stream ARN.
func (a *Admin) CreateTableIfNotExists(ctx context.Context, desc metadata.TableDescription) (metadata.TableDescription, error) {
	existing, err := a.describe(ctx, desc.Name)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return metadata.TableDescription{}, fmt.Errorf("describe table %s: %w", desc.Name, err)
	}

	if _, err := a.client.CreateTable(ctx, desc.ToCreateTableInput()); err != nil {
		// Lost a creation race; fall through to polling.
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return metadata.TableDescription{}, fmt.Errorf("create table %s: %w", desc.Name, err)
		}
	}
	return a.awaitActive(ctx, desc.Name)
}

func (a *Admin) awaitActive(ctx context.Context, name string) (metadata.TableDescription, error) {
	for {
		desc, err := a.describe(ctx, name)
		if err == nil && desc.Status == types.TableStatusActive {
			return desc, nil
		}
		if err != nil && !isNotFound(err) {
			return metadata.TableDescription{}, fmt.Errorf("describe table %s: %w", name, err)
		}
		select {
		case <-ctx.Done():
			return metadata.TableDescription{}, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *Admin) describe(ctx context.Context, name string) (metadata.TableDescription, error) {
	out, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		return metadata.TableDescription{}, err
	}
	return metadata.FromTableDescription(out.Table)
}

func isNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
