package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/export"
	"github.com/acksell/ddbseed/school"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// scanOptional scans tableName, treating a missing table as empty.
func scanOptional[T any](ctx context.Context, a *app, tableName string, attrs ...string) ([]T, error) {
	items, err := export.ScanInto[T](ctx, a.client, tableName, export.ScanOptions{Attributes: attrs})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		a.logger.Warn("table not found", "table", tableName)
		return nil, nil
	}
	return items, err
}

func preview[T any](a *app, label string, items []T, n int) error {
	fmt.Fprintf(a.stdout, "%s (first %d of %d):\n", label, min(n, len(items)), len(items))
	return printJSON(a.stdout, items[:min(n, len(items))])
}

func newAssignClassesCmd(a *app) *cobra.Command {
	var (
		studentsTable       string
		teachersTable       string
		classesTable        string
		studentClassesTable string
		classSize           int
		seed                uint64
		dryRun              bool
	)
	cmd := &cobra.Command{
		Use:   "assign-classes",
		Short: "Split each grade's students into classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			students, err := scanOptional[school.Student](ctx, a, a.cfg.TableName(studentsTable), "id", "grade")
			if err != nil {
				return err
			}
			teachers, err := scanOptional[school.Teacher](ctx, a, a.cfg.TableName(teachersTable), "id", "subject")
			if err != nil {
				return err
			}
			if len(students) == 0 {
				color.Yellow("no students found, nothing to assign")
				return nil
			}

			plan := school.NewGenerator(seed).AssignClasses(students, teachers, classSize)
			fmt.Fprintf(a.stdout, "%d students, class size %d: %d classes, %d assignments\n",
				len(students), classSize, len(plan.Classes), len(plan.StudentClasses))
			if dryRun {
				if err := preview(a, "classes", plan.Classes, 2); err != nil {
					return err
				}
				return preview(a, "student classes", plan.StudentClasses, 5)
			}

			classes, err := ingest.MarshalRecords(plan.Classes)
			if err != nil {
				return err
			}
			members, err := ingest.MarshalRecords(plan.StudentClasses)
			if err != nil {
				return err
			}
			return a.seedAll(ctx,
				ingest.Job{Table: school.ClassesTableDef(a.cfg.TableName(classesTable)), Records: classes},
				ingest.Job{Table: school.StudentClassesTableDef(a.cfg.TableName(studentClassesTable)), Records: members},
			)
		},
	}
	cmd.Flags().StringVar(&studentsTable, "students", school.StudentsTable, "students table")
	cmd.Flags().StringVar(&teachersTable, "teachers", school.TeachersTable, "teachers table for homeroom assignment")
	cmd.Flags().StringVar(&classesTable, "classes", school.ClassesTable, "classes table")
	cmd.Flags().StringVar(&studentClassesTable, "student-classes", school.StudentClassesTable, "student to class table")
	cmd.Flags().IntVar(&classSize, "class-size", school.DefaultClassSize, "maximum students per class")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 picks one")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print a sample instead of writing")
	return cmd
}

func newAssignSubjectsCmd(a *app) *cobra.Command {
	var (
		classesTable       string
		teachersTable      string
		classSubjectsTable string
		seed               uint64
		dryRun             bool
	)
	cmd := &cobra.Command{
		Use:   "assign-subjects",
		Short: "Pick a teacher for every class and subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			classes, err := scanOptional[school.Class](ctx, a, a.cfg.TableName(classesTable))
			if err != nil {
				return err
			}
			teachers, err := scanOptional[school.Teacher](ctx, a, a.cfg.TableName(teachersTable))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d classes, %d teachers\n", len(classes), len(teachers))
			if len(classes) == 0 || len(teachers) == 0 {
				color.Yellow("classes or teachers are empty, nothing to assign")
				return nil
			}

			assigned, skipped := school.NewGenerator(seed).AssignSubjects(classes, teachers)
			for _, s := range skipped {
				a.logger.Warn("no teacher for subject", "class", s.ClassID, "subject", s.Subject)
			}
			fmt.Fprintf(a.stdout, "%d subjects assigned, %d without a teacher\n", len(assigned), len(skipped))
			if dryRun {
				return preview(a, "class subjects", assigned, 5)
			}

			records, err := ingest.MarshalRecords(assigned)
			if err != nil {
				return err
			}
			return a.seed(ctx, school.ClassSubjectsTableDef(a.cfg.TableName(classSubjectsTable)), records)
		},
	}
	cmd.Flags().StringVar(&classesTable, "classes", school.ClassesTable, "classes table")
	cmd.Flags().StringVar(&teachersTable, "teachers", school.TeachersTable, "teachers table")
	cmd.Flags().StringVar(&classSubjectsTable, "class-subjects", school.ClassSubjectsTable, "class subjects table")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 picks one")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print a sample instead of writing")
	return cmd
}
