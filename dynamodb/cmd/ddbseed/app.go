package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/acksell/ddbseed/dynamodb/awsclient"
	"github.com/acksell/ddbseed/dynamodb/ddbiface"
	"github.com/acksell/ddbseed/dynamodb/ddbstore"
	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/dynamodb/provision"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/acksell/ddbseed/export"
	"github.com/fatih/color"
)

// app is the state shared by every command once flags are resolved.
type app struct {
	cfg    Config
	logger *slog.Logger
	stdout io.Writer
	stdin  io.Reader

	client ddbiface.Client
	close  func() error
}

func newLogger(w io.Writer, asJSON, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// connect opens the store the configuration points at: an embedded badger
// store when LocalDB is set, otherwise DynamoDB at Endpoint or in AWS.
func (a *app) connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	if a.cfg.LocalDB != "" {
		opts := ddbstore.StoreOptions{Logger: a.logger.With("component", "ddbstore")}
		if a.cfg.LocalDB == memoryDB {
			opts.InMemory = true
		} else {
			opts.Path = a.cfg.LocalDB
		}
		store, err := ddbstore.New(opts)
		if err != nil {
			return fmt.Errorf("open local db: %w", err)
		}
		a.logger.Info("using embedded store", "path", a.cfg.LocalDB)
		a.client, a.close = store, store.Close
		return nil
	}

	client, awsCfg, err := awsclient.New(ctx, a.cfg.ClientOptions())
	if err != nil {
		return err
	}
	if a.cfg.ClientOptions().Local() {
		a.logger.Info("using local endpoint", "endpoint", a.cfg.Endpoint)
	} else {
		id, err := awsclient.CallerIdentity(ctx, awsCfg)
		if err != nil {
			return err
		}
		a.logger.Info("using aws", "region", awsCfg.Region, "account", id.Account, "arn", id.ARN)
	}
	a.client, a.close = client, func() error { return nil }
	return nil
}

func (a *app) shutdown() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// endpointLabel names the store in export payloads.
func (a *app) endpointLabel() string {
	switch {
	case a.cfg.LocalDB != "":
		return "badger:" + a.cfg.LocalDB
	case a.cfg.Endpoint != "":
		return a.cfg.Endpoint
	}
	return "aws:" + a.cfg.Region
}

func (a *app) ensure(ctx context.Context, def table.TableDefinition) error {
	created, err := provision.EnsureTable(ctx, a.client, def,
		provision.WithLogger(a.logger),
		provision.WithWaitTimeout(a.cfg.WaitTimeout),
	)
	if err != nil {
		return err
	}
	if created {
		color.Green("table %s is ready", def.Name)
	} else {
		a.logger.Debug("table already provisioned", "table", def.Name)
	}
	return nil
}

func (a *app) ingestor() *ingest.Ingestor {
	opts := append(a.cfg.IngestOptions(), ingest.WithLogger(a.logger))
	return ingest.New(a.client, opts...)
}

// seed provisions def and writes records to it.
func (a *app) seed(ctx context.Context, def table.TableDefinition, records []ingest.Record) error {
	if err := a.ensure(ctx, def); err != nil {
		return err
	}
	res, err := a.ingestor().IngestTable(ctx, def, records)
	if reportErr := a.report(res); reportErr != nil && err == nil {
		err = reportErr
	}
	return err
}

// seedAll provisions every job's table, then writes them concurrently.
func (a *app) seedAll(ctx context.Context, jobs ...ingest.Job) error {
	for _, job := range jobs {
		if err := a.ensure(ctx, job.Table); err != nil {
			return err
		}
	}
	results, err := a.ingestor().IngestAll(ctx, jobs...)
	for _, res := range results {
		if reportErr := a.report(res); reportErr != nil && err == nil {
			err = reportErr
		}
	}
	return err
}

// report prints written/total for res. Unwritten records are saved next to
// the working directory so they can be replayed, and reported as an error.
func (a *app) report(res ingest.Result) error {
	line := fmt.Sprintf("%s: %d/%d written", res.Table, res.Written, res.Total)
	if res.Done() {
		fmt.Fprintln(a.stdout, color.GreenString(line))
		return nil
	}
	fmt.Fprintln(a.stdout, color.YellowString(line+" (%d abandoned, %d rejected)", len(res.Abandoned), len(res.Rejected)))

	unwritten := append(append([]ingest.Record{}, res.Abandoned...), res.Rejected...)
	items, err := export.Decode(unwritten)
	if err != nil {
		return err
	}
	path := filepath.Join(".", "abandoned_"+safeFileName(res.Table)+".json")
	if err := export.WriteJSON(path, items); err != nil {
		return err
	}
	color.Yellow("unwritten records saved to %s", path)
	return res.Err()
}

func safeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == os.PathSeparator || r == ':' {
			return '_'
		}
		return r
	}, s)
}

// writeOut writes v as JSON to path when set.
func (a *app) writeOut(path string, v any) error {
	if path == "" {
		return nil
	}
	if err := export.WriteJSON(path, v); err != nil {
		return err
	}
	color.Cyan("wrote %s", path)
	return nil
}
