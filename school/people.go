package school

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Subjects taught at the school, in timetable order.
var Subjects = []string{
	"Chinese", "English", "Mathematics", "Science", "Social Studies",
	"History", "Geography", "Civics",
	"Physics", "Chemistry", "Biology", "Music", "Art",
	"Physical Education", "Information Technology",
}

var (
	fakeUserFirst = []string{"Alice", "Bob", "Carol", "David", "Emily", "Frank", "Grace", "Hank", "Ivy", "Jack",
		"Kim", "Leo", "Mia", "Nina", "Owen", "Paul", "Quinn", "Ray", "Sara", "Tom"}
	fakeUserLast = []string{"Chen", "Wang", "Lin", "Liu", "Huang", "Zhang", "Wu", "Tsai", "Yang", "Li",
		"Chang", "Hsu", "Kuo", "Chou", "Hsieh"}
)

type FakeUser struct {
	ID        string `dynamodbav:"id" json:"id"`
	Name      string `dynamodbav:"name" json:"name"`
	Email     string `dynamodbav:"email" json:"email"`
	Grade     int    `dynamodbav:"grade" json:"grade"`
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

type Student struct {
	ID      string `dynamodbav:"id" json:"id"`
	Name    string `dynamodbav:"name" json:"name"`
	Grade   int    `dynamodbav:"grade" json:"grade"`
	Email   string `dynamodbav:"email" json:"email"`
	Address string `dynamodbav:"address" json:"address"`
}

type Teacher struct {
	ID      string `dynamodbav:"id" json:"id"`
	Name    string `dynamodbav:"name" json:"name"`
	Subject string `dynamodbav:"subject" json:"subject"`
	Email   string `dynamodbav:"email" json:"email"`
	Address string `dynamodbav:"address" json:"address"`
}

// Generator produces fake records. Two generators with the same non-zero
// seed and clock produce the same records.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator returns a Generator seeded with seed; 0 picks a random seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

// WithClock fixes the time used for createdAt and watchedAt values.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func (g *Generator) timestamp() string {
	return g.now().UTC().Format(time.RFC3339Nano)
}

// FakeUsers returns n users with ids u001, u002, ... and grades cycling 1..12.
func (g *Generator) FakeUsers(n int) []FakeUser {
	users := make([]FakeUser, n)
	for i := range users {
		id := fmt.Sprintf("u%03d", i+1)
		first := g.faker.RandomString(fakeUserFirst)
		last := g.faker.RandomString(fakeUserLast)
		users[i] = FakeUser{
			ID:        id,
			Name:      first + " " + last,
			Email:     fmt.Sprintf("%s.%s+%s@example.com", strings.ToLower(first), strings.ToLower(last), id),
			Grade:     1 + i%12,
			CreatedAt: g.timestamp(),
		}
	}
	return users
}

// Students returns n high-school students, grades 9 to 12.
func (g *Generator) Students(n int) []Student {
	students := make([]Student, n)
	for i := range students {
		first, last := g.faker.FirstName(), g.faker.LastName()
		students[i] = Student{
			ID:      g.faker.UUID(),
			Name:    first + " " + last,
			Grade:   g.faker.IntRange(9, 12),
			Email:   g.email(first, last),
			Address: g.address(),
		}
	}
	return students
}

// Teachers returns n teachers, each with one subject from Subjects.
func (g *Generator) Teachers(n int) []Teacher {
	teachers := make([]Teacher, n)
	for i := range teachers {
		first, last := g.faker.FirstName(), g.faker.LastName()
		teachers[i] = Teacher{
			ID:      g.faker.UUID(),
			Name:    first + " " + last,
			Subject: g.faker.RandomString(Subjects),
			Email:   g.email(first, last),
			Address: g.address(),
		}
	}
	return teachers
}

func (g *Generator) email(first, last string) string {
	local := strings.ToLower(first + "." + last)
	local = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\'' {
			return -1
		}
		return r
	}, local)
	return fmt.Sprintf("%s%d@example.edu", local, g.faker.IntRange(1, 9999))
}

// address formats as "street, city, state zip, USA".
func (g *Generator) address() string {
	return fmt.Sprintf("%s, %s, %s %s, USA", g.faker.Street(), g.faker.City(), g.faker.State(), g.faker.Zip())
}
