// Package school generates the synthetic school records ddbseed loads:
// fake users, students, teachers, classes and their subjects, and browsing
// history with its categorized projection.
package school

import "github.com/acksell/ddbseed/dynamodb/table"

// Default table names.
const (
	FakeUserTable         = "FakeUser"
	StudentsTable         = "fake-Students"
	TeachersTable         = "fake-Teachers"
	ClassesTable          = "fake-Classes"
	StudentClassesTable   = "fake-StudentClasses"
	ClassSubjectsTable    = "fake-ClassSubjects"
	SiteViewsTable        = "StudentSiteViews"
	CategorizedViewsTable = "StudentCategorizedViews"
)

func s(name string) table.KeyDef {
	return table.KeyDef{Name: name, Kind: table.KeyKindS}
}

func byID(name string) table.TableDefinition {
	return table.TableDefinition{
		Name:           name,
		KeyDefinitions: table.PrimaryKeyDefinition{PartitionKey: s("id")},
	}
}

func FakeUserTableDef(name string) table.TableDefinition { return byID(name) }
func StudentsTableDef(name string) table.TableDefinition { return byID(name) }
func TeachersTableDef(name string) table.TableDefinition { return byID(name) }
func ClassesTableDef(name string) table.TableDefinition  { return byID(name) }

// StudentClassesTableDef is keyed by student; byClass lists a class roster.
func StudentClassesTableDef(name string) table.TableDefinition {
	return table.TableDefinition{
		Name:           name,
		KeyDefinitions: table.PrimaryKeyDefinition{PartitionKey: s("studentId")},
		GSIs: []table.GSIDefinition{{
			Name:           "byClass",
			KeyDefinitions: table.PrimaryKeyDefinition{PartitionKey: s("classId")},
			Projection:     table.ProjectionAll,
		}},
	}
}

// ClassSubjectsTableDef holds one row per class and subject; byTeacher lists
// what a teacher teaches.
func ClassSubjectsTableDef(name string) table.TableDefinition {
	return table.TableDefinition{
		Name: name,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: s("classId"),
			SortKey:      s("subject"),
		},
		GSIs: []table.GSIDefinition{{
			Name: "byTeacher",
			KeyDefinitions: table.PrimaryKeyDefinition{
				PartitionKey: s("teacherId"),
				SortKey:      s("subject"),
			},
			Projection: table.ProjectionAll,
		}},
	}
}

func SiteViewsTableDef(name string) table.TableDefinition {
	return table.TableDefinition{
		Name: name,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: s("studentEmail"),
			SortKey:      s("viewId"),
		},
	}
}

func CategorizedViewsTableDef(name string) table.TableDefinition {
	gsi := func(name, pk, sk string) table.GSIDefinition {
		return table.GSIDefinition{
			Name:           name,
			KeyDefinitions: table.PrimaryKeyDefinition{PartitionKey: s(pk), SortKey: s(sk)},
			Projection:     table.ProjectionAll,
		}
	}
	return table.TableDefinition{
		Name: name,
		KeyDefinitions: table.PrimaryKeyDefinition{
			PartitionKey: s("studentEmail"),
			SortKey:      s("watchedAt"),
		},
		GSIs: []table.GSIDefinition{
			gsi("byCategoryTime", "category", "watchedAt"),
			gsi("byDomainTime", "domain", "watchedAt"),
			gsi("byStudentCategory", "studentEmail", "category"),
		},
	}
}

// Tables returns every table definition under its default name.
func Tables() []table.TableDefinition {
	return []table.TableDefinition{
		FakeUserTableDef(FakeUserTable),
		StudentsTableDef(StudentsTable),
		TeachersTableDef(TeachersTable),
		ClassesTableDef(ClassesTable),
		StudentClassesTableDef(StudentClassesTable),
		ClassSubjectsTableDef(ClassSubjectsTable),
		SiteViewsTableDef(SiteViewsTable),
		CategorizedViewsTableDef(CategorizedViewsTable),
	}
}
