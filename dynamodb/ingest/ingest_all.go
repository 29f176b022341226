package ingest

import (
	"context"

	"github.com/acksell/ddbseed/dynamodb/table"
	"golang.org/x/sync/errgroup"
)

// Job is one table's worth of records for IngestAll.
type Job struct {
	Table   table.TableDefinition
	Records []Record
}

// IngestAll runs IngestTable for every job, at most WithConcurrency tables at
// a time. Results are in job order. The first error cancels the other jobs,
// whose unsent records are then reported as abandoned.
func (in *Ingestor) IngestAll(ctx context.Context, jobs ...Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := in.IngestTable(ctx, job.Table, job.Records)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
