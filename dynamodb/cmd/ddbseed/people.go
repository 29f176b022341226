package main

import (
	"fmt"
	"strconv"

	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/acksell/ddbseed/school"
	"github.com/spf13/cobra"
)

// generateFlags are shared by the commands that create people.
type generateFlags struct {
	count int
	seed  uint64
	out   string
	table string
	noDB  bool
}

func (f *generateFlags) register(cmd *cobra.Command, count int, tableName string) {
	cmd.Flags().IntVar(&f.count, "count", count, "number of records")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "random seed; 0 picks one")
	cmd.Flags().StringVar(&f.out, "out", "", "also write the records to this JSON file")
	cmd.Flags().StringVar(&f.table, "table", tableName, "table name")
	cmd.Flags().BoolVar(&f.noDB, "no-db", false, "skip the database write")
}

// countArg lets the count be given positionally, as in "students 100".
func (f *generateFlags) countArg(args []string) error {
	if len(args) == 0 {
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", args[0])
	}
	f.count = n
	return nil
}

// generate runs the shared tail of a people command: optional JSON output,
// then provisioning and ingest unless --no-db.
func generate[T any](cmd *cobra.Command, a *app, f *generateFlags, def func(string) table.TableDefinition, items []T) error {
	if err := a.writeOut(f.out, items); err != nil {
		return err
	}
	if f.noDB {
		fmt.Fprintf(a.stdout, "generated %d records, database write skipped\n", len(items))
		return nil
	}
	records, err := ingest.MarshalRecords(items)
	if err != nil {
		return err
	}
	if err := a.connect(cmd.Context()); err != nil {
		return err
	}
	return a.seed(cmd.Context(), def(a.cfg.TableName(f.table)), records)
}

func newFakeUserCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "fakeuser [count]",
		Short: "Create fake users with ids u001, u002, ...",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.countArg(args); err != nil {
				return err
			}
			users := school.NewGenerator(f.seed).FakeUsers(f.count)
			return generate(cmd, a, &f, school.FakeUserTableDef, users)
		},
	}
	f.register(cmd, 50, school.FakeUserTable)
	return cmd
}

func newStudentsCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "students [count]",
		Short: "Create grade 9-12 students",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.countArg(args); err != nil {
				return err
			}
			students := school.NewGenerator(f.seed).Students(f.count)
			return generate(cmd, a, &f, school.StudentsTableDef, students)
		},
	}
	f.register(cmd, 200, school.StudentsTable)
	return cmd
}

func newTeachersCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "teachers [count]",
		Short: "Create teachers, one subject each",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.countArg(args); err != nil {
				return err
			}
			teachers := school.NewGenerator(f.seed).Teachers(f.count)
			return generate(cmd, a, &f, school.TeachersTableDef, teachers)
		},
	}
	f.register(cmd, 50, school.TeachersTable)
	return cmd
}
