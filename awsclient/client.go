// Package awsclient builds real DynamoDB clients from ambient AWS
// configuration, for wiring a shared-table router to the live service.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options configures client construction.
type Options struct {
	// Region overrides the region from the environment or shared config.
	Region string
	// EndpointURL points the client at an alternative endpoint, such as a
	// DynamoDB Local instance.
	EndpointURL string
}

// New loads the default AWS configuration and returns a DynamoDB client.
func New(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var clientOpts []func(*dynamodb.Options)
	if opts.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		})
	}
	return dynamodb.NewFromConfig(cfg, clientOpts...), nil
}
