package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
)

type borrowingRow struct {
	ID         string    `db:"id"`
	BookID     string    `db:"book_id"`
	StudentID  string    `db:"student_id"`
	DueDate    time.Time `db:"due_date"`
	BorrowedAt time.Time `db:"borrowed_at"`
	Status     string    `db:"status"`
	BookName   string    `db:"book_name"`
	BookCode   string    `db:"book_code"`
}

func (r borrowingRow) toBorrowing() library.Borrowing {
	return library.Borrowing{
		ID:         r.ID,
		BookID:     r.BookID,
		StudentID:  r.StudentID,
		DueDate:    r.DueDate.UTC(),
		BorrowedAt: r.BorrowedAt.UTC(),
		Status:     library.BorrowingStatus(r.Status),
		Book: library.Book{
			ID:   r.BookID,
			Name: r.BookName,
			Code: r.BookCode,
		},
	}
}

type studentRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	RollNumber null.String `db:"roll_number"`
}

type profileRow struct {
	UserID string      `db:"user_id"`
	Email  null.String `db:"email"`
	Name   null.String `db:"name"`
}

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	Title     string      `db:"title"`
	Message   string      `db:"message"`
	Type      string      `db:"type"`
	Priority  string      `db:"priority"`
	ActionURL null.String `db:"action_url"`
	IsRead    bool        `db:"is_read"`
	CreatedAt time.Time   `db:"created_at"`
}

func newNotificationRow(n library.Notification) notificationRow {
	return notificationRow{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Priority:  n.Priority,
		ActionURL: null.NewString(n.ActionURL, n.ActionURL != ""),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func (r notificationRow) toNotification() library.Notification {
	return library.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Type:      r.Type,
		Priority:  r.Priority,
		ActionURL: r.ActionURL.String,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// LibraryRepository reads & writes the library tables through any sqlx supported engine.
// Queries use "?" bindvars, rebound for the engine's driver.
type LibraryRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*LibraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

func (repo *LibraryRepository) QueryActiveBorrowings(ctx context.Context) ([]library.Borrowing, error) {
	q := repo.db.Rebind(`
		SELECT bb.id, bb.book_id, bb.student_id, bb.due_date, bb.borrowed_at, bb.status,
			b.name AS book_name, b.code AS book_code
		FROM book_borrowings bb
		JOIN books b ON b.id = bb.book_id
		WHERE bb.status = ?
		ORDER BY bb.due_date, bb.id`)

	var rows []borrowingRow
	if err := repo.db.SelectContext(ctx, &rows, q, string(library.StatusBorrowed)); err != nil {
		return nil, errors.Wrap(err, "selecting borrowings")
	}

	borrowings := make([]library.Borrowing, 0, len(rows))
	for _, r := range rows {
		borrowings = append(borrowings, r.toBorrowing())
	}
	return borrowings, nil
}

func (repo *LibraryRepository) GetStudent(ctx context.Context, id string) (library.Student, error) {
	q := repo.db.Rebind(`SELECT id, user_id, roll_number FROM students WHERE id = ?`)

	var r studentRow
	if err := repo.db.GetContext(ctx, &r, q, id); err != nil {
		return library.Student{}, notFound(err, "getting student")
	}
	return library.Student{ID: r.ID, UserID: r.UserID, RollNumber: r.RollNumber.String}, nil
}

func (repo *LibraryRepository) GetProfile(ctx context.Context, userID string) (library.Profile, error) {
	q := repo.db.Rebind(`SELECT user_id, email, name FROM profiles WHERE user_id = ?`)

	var r profileRow
	if err := repo.db.GetContext(ctx, &r, q, userID); err != nil {
		return library.Profile{}, notFound(err, "getting profile")
	}
	return library.Profile{UserID: r.UserID, Email: r.Email.String, Name: r.Name.String}, nil
}

// CreateNotifications inserts notes in a single transaction: either all or none are created.
func (repo *LibraryRepository) CreateNotifications(ctx context.Context, notes []library.Notification) (int, error) {
	if len(notes) == 0 {
		return 0, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, priority, action_url, is_read, created_at)
		VALUES (:id, :user_id, :title, :message, :type, :priority, :action_url, :is_read, :created_at)`)
	if err != nil {
		return 0, errors.Wrap(err, "preparing notification insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, n := range notes {
		if _, err = stmt.ExecContext(ctx, newNotificationRow(n)); err != nil {
			return 0, errors.Wrapf(err, "inserting notification %s", n.ID)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing notifications")
	}
	return len(notes), nil
}

func (repo *LibraryRepository) QueryNotifications(ctx context.Context, userID string) ([]library.Notification, error) {
	newestFirst := core.DBOrdering{Field: "created_at"}
	q := repo.db.Rebind(`
		SELECT id, user_id, title, message, type, priority, action_url, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY ` + newestFirst.String() + `, id`)

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}

	notes := make([]library.Notification, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.toNotification())
	}
	return notes, nil
}

func (repo *LibraryRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	q := repo.db.Rebind(`UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`)

	res, err := repo.db.ExecContext(ctx, q, true, id, userID)
	if err != nil {
		return errors.Wrap(err, "updating notification")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating notification")
	}
	if n == 0 {
		// mysql reports 0 for rows already read; tell them apart from missing ones
		var found []string
		q = repo.db.Rebind(`SELECT id FROM notifications WHERE id = ? AND user_id = ?`)
		if err = repo.db.SelectContext(ctx, &found, q, id, userID); err != nil {
			return errors.Wrap(err, "selecting notification")
		}
		if len(found) == 0 {
			return library.ErrNotFound
		}
	}
	return nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(library.ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}
