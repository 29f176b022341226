// ddbseed provisions DynamoDB tables and fills them with synthetic school
// data, then reads them back out as JSON.
//
// # Installation
//
//	go install github.com/acksell/ddbseed/dynamodb/cmd/ddbseed@latest
//
// # Quick Start
//
// Against DynamoDB Local on http://localhost:8000 (the default):
//
//	ddbseed students --count 200 --seed 42
//	ddbseed teachers --count 40
//	ddbseed assign-classes --class-size 30
//	ddbseed assign-subjects
//
// Against an embedded store, no server needed:
//
//	ddbseed --local-db ./data students
//
// Against AWS, using the default credential chain:
//
//	ddbseed --endpoint "" --region eu-west-1 students
//
// Settings are read from ddbseed.yaml (searched upwards from the working
// directory), then DDB_ENDPOINT, AWS_REGION and DDBSEED_LOCAL_DB, then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ddbseed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, &app{stdout: os.Stdout, stdin: os.Stdin}, os.Args[1:])
}

// execute runs one command line and closes whatever store it opened.
func execute(ctx context.Context, a *app, args []string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, a.shutdown())
}

func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		region     string
		endpoint   string
		localDB    string
		logJSON    bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "ddbseed",
		Short:         "Seed DynamoDB tables with synthetic school data",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			// Apply precedence: flag > env > file > default
			flags := cmd.Flags()
			if flags.Changed("region") {
				cfg.Region = region
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if flags.Changed("local-db") {
				cfg.LocalDB = localDB
			}

			a.cfg = cfg
			a.logger = newLogger(os.Stderr, logJSON, verbose)
			if path != "" {
				a.logger.Debug("loaded config", "path", path)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: nearest "+configFileName+")")
	pf.StringVar(&region, "region", "", "AWS region")
	pf.StringVar(&endpoint, "endpoint", "", "DynamoDB endpoint; empty targets AWS")
	pf.StringVar(&localDB, "local-db", "", `embedded store directory, or ":memory:"`)
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON")
	pf.BoolVar(&verbose, "verbose", false, "log debug messages")

	rootCmd.AddCommand(
		newFakeUserCmd(a),
		newStudentsCmd(a),
		newTeachersCmd(a),
		newAssignClassesCmd(a),
		newAssignSubjectsCmd(a),
		newSiteViewsCmd(a),
		newCategorizeCmd(a),
		newCategoriesCmd(a),
		newExportCmd(a),
		newExportInitialCmd(a),
		newExportSortedCmd(a),
		newGetCmd(a),
		newEnsureCmd(a),
		newTablesCmd(a),
		newDropCmd(a),
	)
	return rootCmd
}
