package inmemdb

import (
	"sync"

	"github.com/trezcool/schoolerp/core/library"
)

type (
	// DB is an in-memory stand-in for the school database, used in tests & local runs.
	DB struct {
		library *libraryTables
	}

	libraryTables struct {
		sync.RWMutex
		books         map[string]library.Book
		borrowings    map[string]library.Borrowing
		borrowingIDs  []string // insertion order
		students      map[string]library.Student
		profiles      map[string]library.Profile
		notifications []library.Notification

		// injected failures
		queryBorrowingsErr     error
		createNotificationsErr error
	}
)

func Open() (*DB, error) {
	db := &DB{
		library: &libraryTables{
			books:      make(map[string]library.Book),
			borrowings: make(map[string]library.Borrowing),
			students:   make(map[string]library.Student),
			profiles:   make(map[string]library.Profile),
		},
	}
	return db, nil
}
