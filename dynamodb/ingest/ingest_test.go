package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/acksell/ddbseed/dynamodb/ddbstore"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var usersTable = table.TableDefinition{
	Name: "FakeUser",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindS},
	},
}

func users(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{
			"id":   &types.AttributeValueMemberS{Value: fmt.Sprintf("u%03d", i+1)},
			"name": &types.AttributeValueMemberS{Value: "Alex Chen"},
		}
	}
	return out
}

// fakeWriter records every BatchWriteItem call and lets each test decide
// what comes back.
type fakeWriter struct {
	mu      sync.Mutex
	calls   [][]types.WriteRequest
	respond func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error)
}

func (f *fakeWriter) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tableName string
	var reqs []types.WriteRequest
	for name, r := range params.RequestItems {
		tableName, reqs = name, r
	}
	f.calls = append(f.calls, reqs)
	if f.respond == nil {
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
	unprocessed, err := f.respond(len(f.calls), reqs)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	if len(unprocessed) > 0 {
		out.UnprocessedItems[tableName] = unprocessed
	}
	return out, nil
}

func (f *fakeWriter) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, c := range f.calls {
		out = append(out, len(c))
	}
	return out
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) option() Option {
	return withSleep(func(ctx context.Context, d time.Duration) error {
		s.delays = append(s.delays, d)
		return ctx.Err()
	})
}

func TestIngest_ChunksOf25(t *testing.T) {
	writer := &fakeWriter{}
	res, err := New(writer).Ingest(context.Background(), usersTable.Name, users(57))
	require.NoError(t, err)

	assert.Equal(t, []int{25, 25, 7}, writer.sizes())
	assert.Equal(t, 57, res.Total)
	assert.Equal(t, 57, res.Written)
	assert.Empty(t, res.Abandoned)
	assert.Equal(t, 3, res.Requests)
	assert.Equal(t, 0, res.Retries)
	assert.True(t, res.Done())
	assert.NoError(t, res.Err())
}

func TestIngest_RetriesOnlyUnprocessed(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			if call == 1 {
				return reqs[20:], nil
			}
			return nil, nil
		},
	}
	sleeps := &sleepRecorder{}
	records := users(25)
	res, err := New(writer, sleeps.option()).Ingest(context.Background(), usersTable.Name, records)
	require.NoError(t, err)

	assert.Equal(t, []int{25, 5}, writer.sizes())
	for i, req := range writer.calls[1] {
		assert.Equal(t, records[20+i], req.PutRequest.Item)
	}
	assert.Equal(t, 25, res.Written)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, sleeps.delays)
}

func TestIngest_BackoffIsCappedAndRetriesRunOut(t *testing.T) {
	// one record never goes through
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			return reqs[len(reqs)-1:], nil
		},
	}
	sleeps := &sleepRecorder{}
	records := users(25)
	res, err := New(writer, sleeps.option()).Ingest(context.Background(), usersTable.Name, records)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
	}, sleeps.delays)
	assert.Equal(t, 7, res.Requests)
	assert.Equal(t, 6, res.Retries)
	assert.Equal(t, 24, res.Written)
	assert.Equal(t, []Record{records[24]}, res.Abandoned)
	assert.ErrorIs(t, res.Err(), ErrIncomplete)

	sleeps = &sleepRecorder{}
	_, err = New(writer, sleeps.option(), WithBackoff(time.Second, 3*time.Second), WithMaxRetries(4)).
		Ingest(context.Background(), usersTable.Name, users(1))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, sleeps.delays)
}

func TestIngest_WholeChunkNeverProcessed(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			return reqs, nil
		},
	}
	sleeps := &sleepRecorder{}
	records := users(25)
	res, err := New(writer, sleeps.option()).Ingest(context.Background(), usersTable.Name, records)
	require.NoError(t, err)

	assert.Equal(t, []int{25, 25, 25, 25, 25, 25, 25}, writer.sizes())
	assert.Equal(t, 0, res.Written)
	assert.Len(t, res.Abandoned, 25)
	assert.Equal(t, records, res.Abandoned)
	assert.Len(t, sleeps.delays, DefaultMaxRetries)
	for _, d := range sleeps.delays {
		assert.LessOrEqual(t, d, DefaultMaxDelay)
	}
	assert.ErrorIs(t, res.Err(), ErrIncomplete)
}

func TestIngest_AbandonedChunkDoesNotStopLaterChunks(t *testing.T) {
	records := users(60)
	stuck := map[string]bool{"u003": true, "u007": true}
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			var out []types.WriteRequest
			for _, r := range reqs {
				if stuck[r.PutRequest.Item["id"].(*types.AttributeValueMemberS).Value] {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
	sleeps := &sleepRecorder{}
	res, err := New(writer, sleeps.option(), WithMaxRetries(2)).Ingest(context.Background(), usersTable.Name, records)
	require.NoError(t, err)

	assert.Equal(t, []int{25, 2, 2, 25, 10}, writer.sizes())
	assert.Equal(t, 58, res.Written)
	assert.Equal(t, []Record{records[2], records[6]}, res.Abandoned)
	assert.Equal(t, res.Total, res.Written+len(res.Abandoned))
}

func TestIngest_RequestErrorRetriesWholeChunk(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			if call == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return nil, nil
		},
	}
	sleeps := &sleepRecorder{}
	res, err := New(writer, sleeps.option()).Ingest(context.Background(), usersTable.Name, users(10))
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10}, writer.sizes())
	assert.Equal(t, 10, res.Written)
	assert.Equal(t, 1, res.Retries)
}

func TestIngest_FatalErrorStops(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
		},
	}
	records := users(30)
	res, err := New(writer).Ingest(context.Background(), usersTable.Name, records)

	var notFound *types.ResourceNotFoundException
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, records, res.Abandoned)
}

func TestIngest_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			cancel()
			return reqs[:1], nil
		},
	}
	records := users(3)
	res, err := New(writer).Ingest(ctx, usersTable.Name, records)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []Record{records[0]}, res.Abandoned)
}

func TestIngest_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writer := &fakeWriter{}
	records := users(57)
	res, err := New(writer).Ingest(ctx, usersTable.Name, records)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, writer.sizes())
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, res.Requests)
	assert.Equal(t, records, res.Abandoned)
}

func TestIngest_RateLimitFailureSendsNothing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	// the burst covers the first chunk; the second would have to wait past the deadline
	limiter := rate.NewLimiter(rate.Every(time.Hour), MaxBatchSize)
	writer := &fakeWriter{}
	res, _ := New(writer, WithMaxRetries(0), WithRateLimit(limiter)).Ingest(ctx, usersTable.Name, users(50))

	assert.Equal(t, []int{25}, writer.sizes())
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, 25, res.Written)
	assert.Equal(t, res.Total, res.Written+len(res.Abandoned))
}

func TestIngest_NoRetries(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			return reqs[:2], nil
		},
	}
	res, err := New(writer, WithMaxRetries(0)).Ingest(context.Background(), usersTable.Name, users(5))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, 3, res.Written)
	assert.Len(t, res.Abandoned, 2)
}

func TestIngest_Empty(t *testing.T) {
	writer := &fakeWriter{}
	res, err := New(writer).Ingest(context.Background(), usersTable.Name, nil)
	require.NoError(t, err)
	assert.Empty(t, writer.sizes())
	assert.True(t, res.Done())
}

func TestIngest_WithChunkSizeAndRateLimit(t *testing.T) {
	writer := &fakeWriter{}
	in := New(writer, WithChunkSize(10), WithRateLimit(rate.NewLimiter(rate.Limit(10000), MaxBatchSize)))
	res, err := in.Ingest(context.Background(), usersTable.Name, users(25))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 5}, writer.sizes())
	assert.Equal(t, 25, res.Written)

	writer = &fakeWriter{}
	_, err = New(writer, WithChunkSize(100)).Ingest(context.Background(), usersTable.Name, users(30))
	require.NoError(t, err)
	assert.Equal(t, []int{25, 5}, writer.sizes())
}

func TestIngestTable_RejectsInvalidRecords(t *testing.T) {
	records := users(4)
	missingKey := Record{"name": &types.AttributeValueMemberS{Value: "no id"}}
	wrongKind := Record{"id": &types.AttributeValueMemberN{Value: "7"}}
	dup := Record{"id": records[1]["id"], "name": &types.AttributeValueMemberS{Value: "newer"}}
	input := append(append([]Record{}, records...), missingKey, wrongKind, dup)

	writer := &fakeWriter{}
	res, err := New(writer).IngestTable(context.Background(), usersTable, input)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 5, res.Written)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, []Record{missingKey, wrongKind}, res.Rejected)
	assert.ErrorIs(t, res.Err(), ErrIncomplete)

	assert.Equal(t, []int{4}, writer.sizes())
	sent := writer.calls[0]
	assert.Equal(t, dup, sent[len(sent)-1].PutRequest.Item)
}

func TestIngestTable_RepeatedKeysCountAsWritten(t *testing.T) {
	writer := &fakeWriter{}
	res, err := New(writer).IngestTable(context.Background(), usersTable, append(users(3), users(3)...))
	require.NoError(t, err)

	assert.Equal(t, []int{3}, writer.sizes())
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 6, res.Written)
	assert.Equal(t, 3, res.Superseded)
	assert.Empty(t, res.Rejected)
	assert.NoError(t, res.Err())
}

func TestIngestTable_RepeatedKeysAbandonedTogether(t *testing.T) {
	writer := &fakeWriter{
		respond: func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			return reqs[:1], nil
		},
	}
	first, second := users(2), users(2)
	res, err := New(writer, WithMaxRetries(0)).IngestTable(context.Background(), usersTable, append(first, second...))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Written)
	assert.Equal(t, []Record{second[0], first[0]}, res.Abandoned)
	assert.Equal(t, res.Total, res.Written+len(res.Abandoned))
}

func TestIngestTable_DistinctKeysWithSeparatorBytes(t *testing.T) {
	views := table.TableDefinition{
		Name: "StudentSiteViews",
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: table.KeyDef{Name: "studentEmail", Kind: table.KeyKindS},
			SortKey:      table.KeyDef{Name: "viewId", Kind: table.KeyKindS},
		},
	}
	view := func(email, id string) Record {
		return Record{
			"studentEmail": &types.AttributeValueMemberS{Value: email},
			"viewId":       &types.AttributeValueMemberS{Value: id},
		}
	}
	writer := &fakeWriter{}
	res, err := New(writer).IngestTable(context.Background(), views, []Record{
		view("a\x00b", "c"),
		view("a", "b\x00c"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, writer.sizes())
	assert.Equal(t, 2, res.Written)
	assert.Zero(t, res.Superseded)
	assert.Empty(t, res.Rejected)
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(DefaultBaseDelay, DefaultMaxDelay)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{6, 6400 * time.Millisecond},
		{7, 8 * time.Second},
		{60, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	jittered := FullJitter(backoff)
	for attempt := range 10 {
		d := jittered(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, backoff(attempt))
	}
}

func TestIngest_AgainstThrottledStore(t *testing.T) {
	ctx := context.Background()
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true, WriteCapacity: 20}, usersTable)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sleeps := &sleepRecorder{}
	in := New(store, sleeps.option())
	res, err := in.IngestTable(ctx, usersTable, users(57))
	require.NoError(t, err)
	assert.Equal(t, 57, res.Written)
	// 25 -> 20 + 5 retried, twice, then 7
	assert.Equal(t, 5, res.Requests)
	assert.Equal(t, 2, res.Retries)

	// ingesting the same records again overwrites them
	res, err = in.IngestTable(ctx, usersTable, users(57))
	require.NoError(t, err)
	assert.Equal(t, 57, res.Written)
	out, err := store.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &usersTable.Name})
	require.NoError(t, err)
	assert.Equal(t, int64(57), aws.ToInt64(out.Table.ItemCount))
}

func TestIngestAll(t *testing.T) {
	ctx := context.Background()
	classes := table.TableDefinition{
		Name:           "fake-Classes",
		KeyDefinitions: usersTable.KeyDefinitions,
	}
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, usersTable, classes)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	results, err := New(store, WithConcurrency(2)).IngestAll(ctx,
		Job{Table: usersTable, Records: users(30)},
		Job{Table: classes, Records: users(3)},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 30, results[0].Written)
	assert.Equal(t, "fake-Classes", results[1].Table)
	assert.Equal(t, 3, results[1].Written)
}

func TestMarshalRecords(t *testing.T) {
	type user struct {
		ID    string `dynamodbav:"id"`
		Grade int    `dynamodbav:"grade"`
	}
	recs, err := MarshalRecords([]user{{ID: "u001", Grade: 3}})
	require.NoError(t, err)
	assert.Equal(t, []Record{{
		"id":    &types.AttributeValueMemberS{Value: "u001"},
		"grade": &types.AttributeValueMemberN{Value: "3"},
	}}, recs)
}
