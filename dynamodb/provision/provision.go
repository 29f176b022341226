// Package provision makes sure a table and its global secondary indexes exist
// before records are written to it.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acksell/ddbseed/dynamodb/ddbiface"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrWaitTimeout is returned when a table or index does not become ACTIVE
// within the wait timeout.
var ErrWaitTimeout = errors.New("timed out waiting for table to become active")

const (
	DefaultWaitTimeout = 60 * time.Second

	// throughput given to new indexes on tables using provisioned billing
	defaultIndexCapacity = 5
)

type options struct {
	logger      *slog.Logger
	waitTimeout time.Duration
	minDelay    time.Duration
	maxDelay    time.Duration
}

type Option func(*options)

func (o options) validate() error {
	switch {
	case o.waitTimeout <= 0:
		return fmt.Errorf("wait timeout must be positive, got %v", o.waitTimeout)
	case o.minDelay <= 0:
		return fmt.Errorf("poll interval must be positive, got %v", o.minDelay)
	case o.minDelay > o.maxDelay:
		return fmt.Errorf("poll interval minimum %v is greater than maximum %v", o.minDelay, o.maxDelay)
	}
	return nil
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWaitTimeout bounds each wait for the table or a new index to become ACTIVE.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.waitTimeout = d
	}
}

// WithPollInterval sets the bounds of the waiter's polling backoff.
func WithPollInterval(minDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.minDelay = minDelay
		o.maxDelay = maxDelay
	}
}

// EnsureTable creates def when the table does not exist, or adds the indexes
// of def missing from an existing table. It waits for the table and every
// index it touched to become ACTIVE and reports whether anything was created.
//
// Existing tables are never deleted or altered beyond adding indexes, and
// differences in key schema are not reconciled.
func EnsureTable(ctx context.Context, client ddbiface.TableAdmin, def table.TableDefinition, opts ...Option) (bool, error) {
	o := options{
		logger:      slog.New(slog.DiscardHandler),
		waitTimeout: DefaultWaitTimeout,
		minDelay:    time.Second,
		maxDelay:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return false, err
	}
	if err := def.Validate(); err != nil {
		return false, err
	}
	p := &provisioner{client: client, def: def, opts: o, logger: o.logger.With("table", def.Name)}

	desc, err := p.describe(ctx)
	var notFound *types.ResourceNotFoundException
	switch {
	case errors.As(err, &notFound):
		return p.create(ctx)
	case err != nil:
		return false, fmt.Errorf("describe table %s: %w", def.Name, err)
	}
	if desc.TableStatus != types.TableStatusActive {
		if err := p.waitActive(ctx); err != nil {
			return false, err
		}
		if desc, err = p.describe(ctx); err != nil {
			return false, fmt.Errorf("describe table %s: %w", def.Name, err)
		}
	}
	return p.addMissingIndexes(ctx, desc)
}

type provisioner struct {
	client ddbiface.TableAdmin
	def    table.TableDefinition
	opts   options
	logger *slog.Logger
}

func (p *provisioner) describe(ctx context.Context) (*types.TableDescription, error) {
	out, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(p.def.Name)})
	if err != nil {
		return nil, err
	}
	if out.Table == nil {
		return nil, fmt.Errorf("empty table description")
	}
	return out.Table, nil
}

func (p *provisioner) create(ctx context.Context) (bool, error) {
	p.logger.Info("creating table", "indexes", len(p.def.GSIs))
	_, err := p.client.CreateTable(ctx, p.def.CreateTableInput())
	var inUse *types.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		// created concurrently by someone else; treat it as an existing table
		p.logger.Info("table already exists")
		if err := p.waitActive(ctx); err != nil {
			return false, err
		}
		desc, err := p.describe(ctx)
		if err != nil {
			return false, fmt.Errorf("describe table %s: %w", p.def.Name, err)
		}
		return p.addMissingIndexes(ctx, desc)
	case err != nil:
		return false, fmt.Errorf("create table %s: %w", p.def.Name, err)
	}
	if err := p.waitActive(ctx); err != nil {
		return false, err
	}
	p.logger.Info("table active")
	return true, nil
}

func (p *provisioner) addMissingIndexes(ctx context.Context, desc *types.TableDescription) (bool, error) {
	existing := make(map[string]bool, len(desc.GlobalSecondaryIndexes))
	for _, g := range desc.GlobalSecondaryIndexes {
		existing[aws.ToString(g.IndexName)] = true
	}

	var throughput *types.ProvisionedThroughput
	if desc.BillingModeSummary == nil || desc.BillingModeSummary.BillingMode != types.BillingModePayPerRequest {
		throughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(defaultIndexCapacity),
			WriteCapacityUnits: aws.Int64(defaultIndexCapacity),
		}
	}

	created := false
	for _, gsi := range p.def.GSIs {
		if existing[gsi.Name] {
			continue
		}
		p.logger.Info("adding index", "index", gsi.Name)
		idx := gsi.GlobalSecondaryIndex()
		_, err := p.client.UpdateTable(ctx, &dynamodb.UpdateTableInput{
			TableName:            aws.String(p.def.Name),
			AttributeDefinitions: p.def.AttributeDefinitions(gsi),
			GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{{
				Create: &types.CreateGlobalSecondaryIndexAction{
					IndexName:             idx.IndexName,
					KeySchema:             idx.KeySchema,
					Projection:            idx.Projection,
					ProvisionedThroughput: throughput,
				},
			}},
		})
		if err != nil {
			return created, fmt.Errorf("add index %s to %s: %w", gsi.Name, p.def.Name, err)
		}
		created = true
		// indexes are added one at a time; the next update is rejected while one is still building
		if err := p.waitActive(ctx); err != nil {
			return created, err
		}
		p.logger.Info("index active", "index", gsi.Name)
	}
	if !created {
		p.logger.Debug("table up to date")
	}
	return created, nil
}

// waitActive polls until the table and all of its indexes are ACTIVE.
func (p *provisioner) waitActive(ctx context.Context) error {
	var describeErr error
	waiter := dynamodb.NewTableExistsWaiter(p.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = p.opts.minDelay
		o.MaxDelay = p.opts.maxDelay
		o.Retryable = func(ctx context.Context, in *dynamodb.DescribeTableInput, out *dynamodb.DescribeTableOutput, err error) (bool, error) {
			retry, err := tableAndIndexesActive(ctx, in, out, err)
			if err != nil {
				describeErr = err
			}
			return retry, err
		}
	})
	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(p.def.Name)}, p.opts.waitTimeout)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(describeErr, context.DeadlineExceeded):
		// a describe call was still running when the wait timeout expired
		return fmt.Errorf("%w: %s: %w", ErrWaitTimeout, p.def.Name, describeErr)
	case describeErr != nil:
		return fmt.Errorf("wait for table %s: %w", p.def.Name, describeErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrWaitTimeout, p.def.Name, err)
}

// tableAndIndexesActive is a waiter Retryable that keeps polling until the
// table and every index report ACTIVE.
func tableAndIndexesActive(ctx context.Context, in *dynamodb.DescribeTableInput, out *dynamodb.DescribeTableOutput, err error) (bool, error) {
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return true, nil
		}
		return false, err
	}
	if out == nil || out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return true, nil
	}
	for _, g := range out.Table.GlobalSecondaryIndexes {
		if g.IndexStatus != types.IndexStatusActive {
			return true, nil
		}
	}
	return false, nil
}
