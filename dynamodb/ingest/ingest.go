// Package ingest writes record sets into a table in batches of at most 25,
// resending only the records the store reports as unprocessed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acksell/ddbseed/dynamodb/ddbiface"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ErrIncomplete is returned by Result.Err when not every record was written.
var ErrIncomplete = errors.New("ingest incomplete")

// Record is one item as stored in the table.
type Record = map[string]types.AttributeValue

// MarshalRecords converts Go values with dynamodbav tags into records.
func MarshalRecords[T any](items []T) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("marshal record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Result summarizes one ingest. Written + len(Abandoned) + len(Rejected) == Total.
type Result struct {
	Table   string
	Total   int
	Written int
	// Superseded counts records IngestTable dropped because a later record
	// has the same key. They are included in Written once that record is.
	Superseded int
	// Abandoned holds records still unprocessed when retries ran out or the
	// ingest stopped on an error. Callers may persist them for replay.
	Abandoned []Record
	// Rejected holds records IngestTable refused to send.
	Rejected []Record
	// Requests counts BatchWriteItem calls, Retries the resends among them.
	Requests int
	Retries  int
}

// Done returns true if every record was written.
func (r Result) Done() bool {
	return r.Written == r.Total
}

// Err returns nil if Done(), otherwise an error wrapping ErrIncomplete.
func (r Result) Err() error {
	if r.Done() {
		return nil
	}
	return fmt.Errorf("%w: %s: %d of %d records written, %d abandoned, %d rejected",
		ErrIncomplete, r.Table, r.Written, r.Total, len(r.Abandoned), len(r.Rejected))
}

type Ingestor struct {
	client ddbiface.BatchWriter
	opts   options
}

func New(client ddbiface.BatchWriter, opts ...Option) *Ingestor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Ingestor{client: client, opts: o}
}

// Ingest writes records to tableName in order, one chunk at a time.
//
// Each chunk is sent, then its unprocessed records are resent after a backoff
// delay until none remain or the retry limit is reached; what is left is
// abandoned and the ingest moves on. A failed request counts its whole chunk
// as unprocessed. Context cancellation and errors that no retry can fix
// (missing table, validation, access denied) stop the ingest; the partial
// Result is returned alongside the error.
func (in *Ingestor) Ingest(ctx context.Context, tableName string, records []Record) (Result, error) {
	res := Result{Table: tableName, Total: len(records)}
	logger := in.opts.logger.With("table", tableName)

	for start := 0; start < len(records); start += in.opts.chunkSize {
		if err := ctx.Err(); err != nil {
			res.Abandoned = append(res.Abandoned, records[start:]...)
			return res, fmt.Errorf("ingest %s: %w", tableName, err)
		}
		end := min(start+in.opts.chunkSize, len(records))
		if err := in.writeChunk(ctx, logger, tableName, records[start:end], &res); err != nil {
			res.Abandoned = append(res.Abandoned, records[end:]...)
			return res, fmt.Errorf("ingest %s: %w", tableName, err)
		}
	}

	logger.Info("ingest finished",
		"written", res.Written,
		"total", res.Total,
		"abandoned", len(res.Abandoned),
		"requests", res.Requests,
		"retries", res.Retries,
	)
	return res, nil
}

// IngestTable is Ingest with records checked against def first. Records
// missing a key attribute are rejected. When several records share a key only
// the last one is sent, as a batch may not repeat a key; the earlier ones
// count as written once it is, and are abandoned with it otherwise.
func (in *Ingestor) IngestTable(ctx context.Context, def table.TableDefinition, records []Record) (Result, error) {
	logger := in.opts.logger.With("table", def.Name)
	s := screen(logger, def, records)
	res, err := in.Ingest(ctx, def.Name, s.valid)
	res.Total = len(records)
	res.Rejected = s.rejected
	res.Superseded = len(s.superseded)
	if len(s.superseded) == 0 {
		return res, err
	}

	abandoned := make(map[recordKey]bool, len(res.Abandoned))
	for _, rec := range res.Abandoned {
		if pk, err := def.ExtractPrimaryKey(rec); err == nil {
			abandoned[keyOf(pk)] = true
		}
	}
	for _, sup := range s.superseded {
		if abandoned[sup.key] {
			res.Abandoned = append(res.Abandoned, sup.rec)
		} else {
			res.Written++
		}
	}
	logger.Debug("superseded records", "count", len(s.superseded))
	return res, err
}

type recordKey struct {
	pk, sk string
}

func keyOf(pk table.PrimaryKey) recordKey {
	return recordKey{pk: keyString(pk.Values.PartitionKey), sk: keyString(pk.Values.SortKey)}
}

func keyString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

type keyedRecord struct {
	key recordKey
	rec Record
}

type screened struct {
	valid      []Record
	rejected   []Record
	superseded []keyedRecord
}

func screen(logger *slog.Logger, def table.TableDefinition, records []Record) screened {
	keys := make([]recordKey, len(records))
	ok := make([]bool, len(records))
	last := make(map[recordKey]int, len(records))
	for i, rec := range records {
		pk, err := def.ExtractPrimaryKey(rec)
		if err != nil {
			logger.Warn("record rejected", "index", i, "error", err)
			continue
		}
		keys[i], ok[i] = keyOf(pk), true
		last[keys[i]] = i
	}
	var s screened
	for i, rec := range records {
		switch {
		case !ok[i]:
			s.rejected = append(s.rejected, rec)
		case last[keys[i]] != i:
			s.superseded = append(s.superseded, keyedRecord{key: keys[i], rec: rec})
		default:
			s.valid = append(s.valid, rec)
		}
	}
	return s
}

func (in *Ingestor) writeChunk(ctx context.Context, logger *slog.Logger, tableName string, chunk []Record, res *Result) error {
	pending := make([]types.WriteRequest, len(chunk))
	for i, rec := range chunk {
		pending[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: rec}}
	}

	for attempt := 0; ; attempt++ {
		unprocessed, err := in.send(ctx, tableName, pending, res)
		if err != nil {
			if fatal(ctx, err) {
				res.Abandoned = append(res.Abandoned, putItems(pending)...)
				return err
			}
			logger.Warn("batch write failed", "records", len(pending), "attempt", attempt, "error", err)
			unprocessed = pending
		}
		res.Written += len(pending) - len(unprocessed)
		if len(unprocessed) == 0 {
			return nil
		}
		if attempt >= in.opts.maxRetries {
			logger.Warn("giving up on unprocessed records", "records", len(unprocessed), "retries", attempt)
			res.Abandoned = append(res.Abandoned, putItems(unprocessed)...)
			return nil
		}

		delay := in.opts.backoff(attempt)
		logger.Debug("retrying unprocessed records", "records", len(unprocessed), "attempt", attempt+1, "delay", delay)
		if err := in.opts.sleep(ctx, delay); err != nil {
			res.Abandoned = append(res.Abandoned, putItems(unprocessed)...)
			return err
		}
		res.Retries++
		pending = unprocessed
	}
}

// send issues one BatchWriteItem call and returns what came back unprocessed.
func (in *Ingestor) send(ctx context.Context, tableName string, reqs []types.WriteRequest, res *Result) ([]types.WriteRequest, error) {
	if l := in.opts.limiter; l != nil {
		if n := min(len(reqs), l.Burst()); n > 0 {
			if err := l.WaitN(ctx, n); err != nil {
				return nil, err
			}
		}
	}
	out, err := in.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{tableName: reqs},
	})
	res.Requests++
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	unprocessed := out.UnprocessedItems[tableName]
	if len(unprocessed) > len(reqs) {
		// never count more than was sent
		return reqs, nil
	}
	return unprocessed, nil
}

// fatal reports errors that resending the same records cannot fix.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ValidationException", "AccessDeniedException", "UnrecognizedClientException":
			return true
		}
	}
	return false
}

func putItems(reqs []types.WriteRequest) []Record {
	out := make([]Record, 0, len(reqs))
	for _, r := range reqs {
		if r.PutRequest != nil {
			out = append(out, r.PutRequest.Item)
		}
	}
	return out
}
