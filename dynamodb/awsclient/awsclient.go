// Package awsclient builds DynamoDB clients for AWS or a local endpoint such
// as DynamoDB Local.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const DefaultRegion = "us-west-2"

type Options struct {
	Region string
	// Endpoint points the client at a local DynamoDB. Empty means AWS.
	Endpoint string
}

// Local reports whether the options target a local endpoint.
func (o Options) Local() bool {
	return o.Endpoint != ""
}

// LoadConfig resolves the AWS configuration. Local endpoints get static
// placeholder credentials, since DynamoDB Local accepts any.
func LoadConfig(ctx context.Context, o Options) (aws.Config, error) {
	region := o.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.Local() {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("fake", "fake", ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// New returns a DynamoDB client for o.
func New(ctx context.Context, o Options) (*dynamodb.Client, aws.Config, error) {
	cfg, err := LoadConfig(ctx, o)
	if err != nil {
		return nil, aws.Config{}, err
	}
	client := dynamodb.NewFromConfig(cfg, func(opts *dynamodb.Options) {
		if o.Local() {
			opts.BaseEndpoint = aws.String(o.Endpoint)
		}
	})
	return client, cfg, nil
}

type Identity struct {
	Account string
	ARN     string
}

// CallerIdentity asks STS who the resolved credentials belong to.
func CallerIdentity(ctx context.Context, cfg aws.Config) (Identity, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return Identity{Account: aws.ToString(out.Account), ARN: aws.ToString(out.Arn)}, nil
}
