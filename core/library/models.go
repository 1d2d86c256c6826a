package library

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type BorrowingStatus string

const (
	StatusBorrowed BorrowingStatus = "BORROWED"
	StatusReturned BorrowingStatus = "RETURNED"
)

// Notification types & priorities
const (
	NotificationTypeLibrary = "library"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ErrNotFound is returned when a single record lookup yields nothing.
var ErrNotFound = errors.New("record not found")

// Repository is the data access the library pipeline relies on.
// Implementations return ErrNotFound (possibly wrapped) when a single record lookup yields nothing.
type Repository interface {
	// QueryActiveBorrowings returns all BORROWED loans joined with their Book.
	QueryActiveBorrowings(ctx context.Context) ([]Borrowing, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	GetProfile(ctx context.Context, userID string) (Profile, error)
	// CreateNotifications inserts all notes at once and returns how many were created.
	CreateNotifications(ctx context.Context, notes []Notification) (int, error)
	// QueryNotifications returns the user's notifications, newest first.
	QueryNotifications(ctx context.Context, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

type Book struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Borrowing is a book loan record. The pipeline only ever reads it.
type Borrowing struct {
	ID         string          `json:"id" validate:"required"`
	BookID     string          `json:"book_id" validate:"required"`
	StudentID  string          `json:"student_id" validate:"required"`
	DueDate    time.Time       `json:"due_date" validate:"required"` // calendar date, UTC midnight
	BorrowedAt time.Time       `json:"borrowed_at"`
	Status     BorrowingStatus `json:"status" validate:"oneof=BORROWED RETURNED"`
	Book       Book            `json:"book"`
}

type Student struct {
	ID         string `json:"id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	RollNumber string `json:"roll_number"`
}

// Profile holds the contact details of a user account.
type Profile struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name"`
}

// DisplayName falls back to the email when the profile has no name.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Notification is an in-app notification entry. Append-only.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	ActionURL string    `json:"action_url"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"` // UTC
}
