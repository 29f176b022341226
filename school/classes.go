package school

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

const DefaultClassSize = 30

type Class struct {
	ID                string `dynamodbav:"id" json:"id"`
	Name              string `dynamodbav:"name" json:"name"`
	Grade             int    `dynamodbav:"grade" json:"grade"`
	HomeroomTeacherID string `dynamodbav:"homeroomTeacherId,omitempty" json:"homeroomTeacherId,omitempty"`
	CreatedAt         string `dynamodbav:"createdAt" json:"createdAt"`
}

type StudentClass struct {
	StudentID string `dynamodbav:"studentId" json:"studentId"`
	ClassID   string `dynamodbav:"classId" json:"classId"`
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

type ClassSubject struct {
	ClassID   string `dynamodbav:"classId" json:"classId"`
	Subject   string `dynamodbav:"subject" json:"subject"`
	TeacherID string `dynamodbav:"teacherId" json:"teacherId"`
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

// Assignment is the output of AssignClasses.
type Assignment struct {
	Classes        []Class
	StudentClasses []StudentClass
}

// AssignClasses splits each grade's students, shuffled, into
// ceil(n/classSize) classes named G<grade>-C<i>. Grades outside 9..12 are
// treated as 9. When teachers are given, homeroom teachers are handed out
// round-robin.
func (g *Generator) AssignClasses(students []Student, teachers []Teacher, classSize int) Assignment {
	if classSize <= 0 {
		classSize = DefaultClassSize
	}
	byGrade := make(map[int][]Student)
	for _, st := range students {
		grade := st.Grade
		if grade < 9 || grade > 12 {
			grade = 9
		}
		byGrade[grade] = append(byGrade[grade], st)
	}
	grades := make([]int, 0, len(byGrade))
	for grade := range byGrade {
		grades = append(grades, grade)
	}
	slices.Sort(grades)

	var out Assignment
	for _, grade := range grades {
		list := slices.Clone(byGrade[grade])
		g.shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
		for i, members := range chunk(list, classSize) {
			cls := Class{
				ID:        g.faker.UUID(),
				Name:      fmt.Sprintf("G%d-C%d", grade, i+1),
				Grade:     grade,
				CreatedAt: g.timestamp(),
			}
			if len(teachers) > 0 {
				cls.HomeroomTeacherID = teachers[len(out.Classes)%len(teachers)].ID
			}
			out.Classes = append(out.Classes, cls)
			for _, st := range members {
				out.StudentClasses = append(out.StudentClasses, StudentClass{
					StudentID: st.ID,
					ClassID:   cls.ID,
					CreatedAt: g.timestamp(),
				})
			}
		}
	}
	return out
}

// SkippedSubject is a class and subject no teacher could be found for.
type SkippedSubject struct {
	ClassID string
	Subject string
}

// AssignSubjects picks a teacher for every class and subject. The homeroom
// teacher takes their own subject; other subjects go to a random teacher of
// that subject. Subjects nobody teaches are returned as skipped.
func (g *Generator) AssignSubjects(classes []Class, teachers []Teacher) ([]ClassSubject, []SkippedSubject) {
	teacherByID := make(map[string]Teacher, len(teachers))
	pools := make(map[string][]Teacher)
	for _, t := range teachers {
		teacherByID[t.ID] = t
		key := strings.ToLower(t.Subject)
		pools[key] = append(pools[key], t)
	}
	// stable pools regardless of input order
	for _, pool := range pools {
		slices.SortFunc(pool, func(a, b Teacher) int { return cmp.Compare(a.ID, b.ID) })
	}

	var (
		assigned []ClassSubject
		skipped  []SkippedSubject
	)
	for _, cls := range classes {
		homeroom, hasHomeroom := teacherByID[cls.HomeroomTeacherID]
		for _, sub := range Subjects {
			key := strings.ToLower(sub)
			var teacherID string
			switch pool := pools[key]; {
			case hasHomeroom && strings.ToLower(homeroom.Subject) == key:
				teacherID = homeroom.ID
			case len(pool) > 0:
				teacherID = pool[g.faker.IntRange(0, len(pool)-1)].ID
			default:
				skipped = append(skipped, SkippedSubject{ClassID: cls.ID, Subject: sub})
				continue
			}
			assigned = append(assigned, ClassSubject{
				ClassID:   cls.ID,
				Subject:   sub,
				TeacherID: teacherID,
				CreatedAt: g.timestamp(),
			})
		}
	}
	return assigned, skipped
}

// shuffle is a Fisher-Yates shuffle driven by the generator's faker.
func (g *Generator) shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, g.faker.IntRange(0, i))
	}
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
