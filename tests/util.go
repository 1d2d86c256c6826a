package testutil

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/storage/database"
)

// Loan describes a seeded loan: the book, the borrowing student and their profile.
type Loan struct {
	ID        string
	Student   string // student ID; its user ID is "user-" + Student
	Email     string // empty: the profile has no email
	Name      string
	NoProfile bool
	Book      string
	DueDate   time.Time
	Status    library.BorrowingStatus // zero: BORROWED
}

// NewSQLiteDB opens a migrated in-memory sqlite database, closed at the end of the test.
func NewSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := &core.Config{}
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = ":memory:"

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("NewSQLiteDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		t.Fatalf("NewSQLiteDB() failed: %v", err)
	}
	return db
}

// SeedSQL inserts loans (and the rows they reference) into db.
func SeedSQL(t *testing.T, db *sqlx.DB, loans ...Loan) {
	t.Helper()

	exec := func(q string, args ...interface{}) {
		if _, err := db.Exec(db.Rebind(q), args...); err != nil {
			t.Fatalf("SeedSQL() failed: %v", err)
		}
	}
	seen := make(map[string]bool)
	for _, l := range loans {
		if !seen["book:"+l.Book] {
			exec(`INSERT INTO books (id, name, code) VALUES (?, ?, ?)`, l.Book, "Book "+l.Book, "CODE-"+l.Book)
			seen["book:"+l.Book] = true
		}
		if !seen["student:"+l.Student] {
			userID := "user-" + l.Student
			exec(`INSERT INTO students (id, user_id, roll_number) VALUES (?, ?, NULL)`, l.Student, userID)
			if !l.NoProfile {
				var email interface{}
				if l.Email != "" {
					email = l.Email
				}
				exec(`INSERT INTO profiles (user_id, email, name) VALUES (?, ?, ?)`, userID, email, l.Name)
			}
			seen["student:"+l.Student] = true
		}
		status := l.Status
		if status == "" {
			status = library.StatusBorrowed
		}
		exec(`INSERT INTO book_borrowings (id, book_id, student_id, due_date, borrowed_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, l.Book, l.Student, l.DueDate.UTC(), l.DueDate.AddDate(0, 0, -14).UTC(), string(status))
	}
}

// SeedMemory inserts loans (and the rows they reference) into an in-memory repository.
func SeedMemory(repo interface {
	AddBook(library.Book) library.Book
	AddStudent(library.Student) library.Student
	AddProfile(library.Profile) library.Profile
	AddBorrowing(library.Borrowing) library.Borrowing
}, loans ...Loan) {
	for _, l := range loans {
		userID := "user-" + l.Student
		repo.AddBook(library.Book{ID: l.Book, Name: "Book " + l.Book, Code: "CODE-" + l.Book})
		repo.AddStudent(library.Student{ID: l.Student, UserID: userID})
		if !l.NoProfile {
			repo.AddProfile(library.Profile{UserID: userID, Email: l.Email, Name: l.Name})
		}
		status := l.Status
		if status == "" {
			status = library.StatusBorrowed
		}
		repo.AddBorrowing(library.Borrowing{
			ID:         l.ID,
			BookID:     l.Book,
			StudentID:  l.Student,
			DueDate:    l.DueDate.UTC(),
			BorrowedAt: l.DueDate.AddDate(0, 0, -14).UTC(),
			Status:     status,
		})
	}
}

// Day returns the UTC midnight of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
