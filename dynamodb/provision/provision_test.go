package provision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acksell/ddbseed/dynamodb/ddbstore"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classSubjects = table.TableDefinition{
	Name: "fake-ClassSubjects",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "classId", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "subject", Kind: table.KeyKindS},
	},
	GSIs: []table.GSIDefinition{{
		Name: "byTeacher",
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "teacherId", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "subject", Kind: table.KeyKindS},
		},
	}},
}

func newTestStore(t *testing.T, opts ddbstore.StoreOptions, defs ...table.TableDefinition) *ddbstore.Store {
	opts.InMemory = true
	store, err := ddbstore.New(opts, defs...)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func fastPolling() Option {
	return WithPollInterval(time.Millisecond, 5*time.Millisecond)
}

func indexNames(t *testing.T, client *ddbstore.Store, name string) []string {
	t.Helper()
	out, err := client.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	require.NoError(t, err)
	var names []string
	for _, g := range out.Table.GlobalSecondaryIndexes {
		names = append(names, aws.ToString(g.IndexName))
	}
	return names
}

func TestEnsureTable_CreateThenNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ddbstore.StoreOptions{})

	created, err := EnsureTable(ctx, store, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"byTeacher"}, indexNames(t, store, classSubjects.Name))

	created, err = EnsureTable(ctx, store, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureTable_AddsOnlyMissingIndex(t *testing.T) {
	ctx := context.Background()
	bare := classSubjects
	bare.GSIs = nil
	store := newTestStore(t, ddbstore.StoreOptions{}, bare)

	_, err := store.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			classSubjects.Name: {{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{
				"classId":   &types.AttributeValueMemberS{Value: "G9-C1"},
				"subject":   &types.AttributeValueMemberS{Value: "Math"},
				"teacherId": &types.AttributeValueMemberS{Value: "t1"},
			}}}},
		},
	})
	require.NoError(t, err)

	created, err := EnsureTable(ctx, store, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"byTeacher"}, indexNames(t, store, classSubjects.Name))

	// the existing item is reachable through the new index
	out, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(classSubjects.Name), IndexName: aws.String("byTeacher")})
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)

	created, err = EnsureTable(ctx, store, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureTable_WaitsForActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ddbstore.StoreOptions{ActivationDelay: 30 * time.Millisecond})

	created, err := EnsureTable(ctx, store, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.True(t, created)

	out, err := store.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(classSubjects.Name)})
	require.NoError(t, err)
	assert.Equal(t, types.TableStatusActive, out.Table.TableStatus)
}

func TestEnsureTable_InvalidDefinition(t *testing.T) {
	_, err := EnsureTable(context.Background(), &fakeAdmin{}, table.TableDefinition{Name: "t"})
	assert.ErrorContains(t, err, "partition key name is required")
}

// fakeAdmin scripts DescribeTable responses and records mutations. Describe
// calls after hangAfter block until their context is done.
type fakeAdmin struct {
	mu        sync.Mutex
	describe  func(call int) (*dynamodb.DescribeTableOutput, error)
	calls     int
	hangAfter int
	createErr error
	creates   []*dynamodb.CreateTableInput
	updates   []*dynamodb.UpdateTableInput
}

func (f *fakeAdmin) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.hangAfter > 0 && call > f.hangAfter {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.describe(call)
}

func (f *fakeAdmin) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAdmin) UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, params)
	return &dynamodb.UpdateTableOutput{}, nil
}

func tableOutput(status types.TableStatus, indexes ...string) *dynamodb.DescribeTableOutput {
	desc := &types.TableDescription{TableName: aws.String(classSubjects.Name), TableStatus: status}
	for _, name := range indexes {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
			IndexName:   aws.String(name),
			IndexStatus: types.IndexStatusActive,
		})
	}
	return &dynamodb.DescribeTableOutput{Table: desc}
}

func notFound() error {
	return &types.ResourceNotFoundException{Message: aws.String("not found")}
}

func TestEnsureTable_WaitTimeout(t *testing.T) {
	client := &fakeAdmin{
		describe: func(call int) (*dynamodb.DescribeTableOutput, error) {
			if call == 1 {
				return nil, notFound()
			}
			return tableOutput(types.TableStatusCreating), nil
		},
	}
	_, err := EnsureTable(context.Background(), client, classSubjects, fastPolling(), WithWaitTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Len(t, client.creates, 1)
}

func TestEnsureTable_WaitTimeoutDuringSlowDescribe(t *testing.T) {
	client := &fakeAdmin{
		hangAfter: 1,
		describe: func(call int) (*dynamodb.DescribeTableOutput, error) {
			return nil, notFound()
		},
	}
	_, err := EnsureTable(context.Background(), client, classSubjects, fastPolling(), WithWaitTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Len(t, client.creates, 1)
}

func TestEnsureTable_InvalidWaitOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"zero timeout", WithWaitTimeout(0), "wait timeout must be positive"},
		{"zero poll interval", WithPollInterval(0, time.Second), "poll interval must be positive"},
		{"min above max", WithPollInterval(5*time.Second, time.Second), "greater than maximum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeAdmin{
				describe: func(int) (*dynamodb.DescribeTableOutput, error) {
					return tableOutput(types.TableStatusActive, "byTeacher"), nil
				},
			}
			_, err := EnsureTable(context.Background(), client, classSubjects, tt.opt)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
			assert.NotErrorIs(t, err, ErrWaitTimeout)
			assert.Zero(t, client.calls)
		})
	}
}

func TestEnsureTable_ConcurrentCreate(t *testing.T) {
	client := &fakeAdmin{
		createErr: &types.ResourceInUseException{Message: aws.String("Table already exists")},
		describe: func(call int) (*dynamodb.DescribeTableOutput, error) {
			if call == 1 {
				return nil, notFound()
			}
			return tableOutput(types.TableStatusActive, "byTeacher"), nil
		},
	}
	created, err := EnsureTable(context.Background(), client, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, client.updates)
}

func TestEnsureTable_DescribeError(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
	client := &fakeAdmin{
		describe: func(int) (*dynamodb.DescribeTableOutput, error) {
			return nil, denied
		},
	}
	_, err := EnsureTable(context.Background(), client, classSubjects, fastPolling())
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDeniedException", apiErr.ErrorCode())
	assert.Empty(t, client.creates)
}

func TestEnsureTable_ProvisionedTableGetsIndexThroughput(t *testing.T) {
	client := &fakeAdmin{
		describe: func(call int) (*dynamodb.DescribeTableOutput, error) {
			if call == 1 {
				return tableOutput(types.TableStatusActive), nil
			}
			return tableOutput(types.TableStatusActive, "byTeacher"), nil
		},
	}
	created, err := EnsureTable(context.Background(), client, classSubjects, fastPolling())
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, client.updates, 1)
	upd := client.updates[0].GlobalSecondaryIndexUpdates[0].Create
	assert.Equal(t, "byTeacher", aws.ToString(upd.IndexName))
	require.NotNil(t, upd.ProvisionedThroughput)
	assert.Equal(t, int64(5), aws.ToInt64(upd.ProvisionedThroughput.WriteCapacityUnits))
}

func TestEnsureTable_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeAdmin{
		describe: func(call int) (*dynamodb.DescribeTableOutput, error) {
			if call == 1 {
				return nil, notFound()
			}
			cancel()
			return tableOutput(types.TableStatusCreating), nil
		},
	}
	_, err := EnsureTable(ctx, client, classSubjects, fastPolling())
	assert.ErrorIs(t, err, context.Canceled)
}
