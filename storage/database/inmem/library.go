package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/schoolerp/core/library"
)

// LibraryRepository keeps the library tables in memory.
type LibraryRepository struct {
	db *libraryTables
}

var _ library.Repository = (*LibraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) *LibraryRepository {
	return &LibraryRepository{db: db.library}
}

// Seeding

func (repo *LibraryRepository) AddBook(b library.Book) library.Book {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.books[b.ID] = b
	return b
}

func (repo *LibraryRepository) AddStudent(s library.Student) library.Student {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.students[s.ID] = s
	return s
}

func (repo *LibraryRepository) AddProfile(p library.Profile) library.Profile {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.profiles[p.UserID] = p
	return p
}

// AddBorrowing saves b; b.Book is ignored, the book is joined on read.
func (repo *LibraryRepository) AddBorrowing(b library.Borrowing) library.Borrowing {
	repo.db.Lock()
	defer repo.db.Unlock()
	b.Book = library.Book{}
	if _, ok := repo.db.borrowings[b.ID]; !ok {
		repo.db.borrowingIDs = append(repo.db.borrowingIDs, b.ID)
	}
	repo.db.borrowings[b.ID] = b
	return b
}

func (repo *LibraryRepository) SetBorrowingStatus(id string, status library.BorrowingStatus) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	b, ok := repo.db.borrowings[id]
	if !ok {
		return library.ErrNotFound
	}
	b.Status = status
	repo.db.borrowings[id] = b
	return nil
}

// FailQueryBorrowings makes QueryActiveBorrowings fail with err (nil resets).
func (repo *LibraryRepository) FailQueryBorrowings(err error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.queryBorrowingsErr = err
}

// FailCreateNotifications makes CreateNotifications fail with err (nil resets).
func (repo *LibraryRepository) FailCreateNotifications(err error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.createNotificationsErr = err
}

// Notifications returns all the stored notifications, in insertion order.
func (repo *LibraryRepository) Notifications() []library.Notification {
	repo.db.RLock()
	defer repo.db.RUnlock()
	notes := make([]library.Notification, len(repo.db.notifications))
	copy(notes, repo.db.notifications)
	return notes
}

// library.Repository

func (repo *LibraryRepository) QueryActiveBorrowings(ctx context.Context) ([]library.Borrowing, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if repo.db.queryBorrowingsErr != nil {
		return nil, repo.db.queryBorrowingsErr
	}

	borrowings := make([]library.Borrowing, 0, len(repo.db.borrowingIDs))
	for _, id := range repo.db.borrowingIDs {
		b := repo.db.borrowings[id]
		if b.Status != library.StatusBorrowed {
			continue
		}
		b.Book = repo.db.books[b.BookID]
		borrowings = append(borrowings, b)
	}
	return borrowings, nil
}

func (repo *LibraryRepository) GetStudent(ctx context.Context, id string) (library.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if s, ok := repo.db.students[id]; ok {
		return s, nil
	}
	return library.Student{}, library.ErrNotFound
}

func (repo *LibraryRepository) GetProfile(ctx context.Context, userID string) (library.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if p, ok := repo.db.profiles[userID]; ok {
		return p, nil
	}
	return library.Profile{}, library.ErrNotFound
}

func (repo *LibraryRepository) CreateNotifications(ctx context.Context, notes []library.Notification) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if repo.db.createNotificationsErr != nil {
		return 0, repo.db.createNotificationsErr
	}
	repo.db.notifications = append(repo.db.notifications, notes...)
	return len(notes), nil
}

func (repo *LibraryRepository) QueryNotifications(ctx context.Context, userID string) ([]library.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notes := make([]library.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return notes, nil
}

func (repo *LibraryRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for i, n := range repo.db.notifications {
		if n.ID == id && n.UserID == userID {
			repo.db.notifications[i].IsRead = true
			return nil
		}
	}
	return library.ErrNotFound
}
