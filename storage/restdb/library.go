// Package restdb reads & writes the library tables through the managed database's REST API
// (PostgREST dialect), authenticated with the service-role key.
package restdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
)

// APIError is returned when the REST API answers with a non 2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("rest api: status %d: %s", err.StatusCode, err.Body)
}

// timestamp layouts, "timestamp without time zone" columns first
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unparsable time %q", s)
}

type (
	bookRow struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}

	borrowingRow struct {
		ID         string  `json:"id"`
		BookID     string  `json:"book_id"`
		StudentID  string  `json:"student_id"`
		DueDate    string  `json:"due_date"`
		BorrowedAt string  `json:"borrowed_at"`
		Status     string  `json:"status"`
		Book       bookRow `json:"books"`
	}

	studentRow struct {
		ID         string      `json:"id"`
		UserID     string      `json:"user_id"`
		RollNumber null.String `json:"roll_number"`
	}

	profileRow struct {
		UserID string      `json:"user_id"`
		Email  null.String `json:"email"`
		Name   null.String `json:"name"`
	}

	notificationRow struct {
		ID        string      `json:"id"`
		UserID    string      `json:"user_id"`
		Title     string      `json:"title"`
		Message   string      `json:"message"`
		Type      string      `json:"type"`
		Priority  string      `json:"priority"`
		ActionURL null.String `json:"action_url"`
		IsRead    bool        `json:"is_read"`
		CreatedAt string      `json:"created_at"`
	}
)

func (r borrowingRow) toBorrowing() (library.Borrowing, error) {
	due, err := parseTime(r.DueDate)
	if err != nil {
		return library.Borrowing{}, errors.Wrapf(err, "borrowing %s due_date", r.ID)
	}
	var borrowedAt time.Time
	if r.BorrowedAt != "" {
		if borrowedAt, err = parseTime(r.BorrowedAt); err != nil {
			return library.Borrowing{}, errors.Wrapf(err, "borrowing %s borrowed_at", r.ID)
		}
	}
	return library.Borrowing{
		ID:         r.ID,
		BookID:     r.BookID,
		StudentID:  r.StudentID,
		DueDate:    due,
		BorrowedAt: borrowedAt,
		Status:     library.BorrowingStatus(r.Status),
		Book:       library.Book{ID: r.BookID, Name: r.Book.Name, Code: r.Book.Code},
	}, nil
}

func (r notificationRow) toNotification() (library.Notification, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return library.Notification{}, errors.Wrapf(err, "notification %s created_at", r.ID)
	}
	return library.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Type:      r.Type,
		Priority:  r.Priority,
		ActionURL: r.ActionURL.String,
		IsRead:    r.IsRead,
		CreatedAt: createdAt,
	}, nil
}

type LibraryRepository struct {
	baseURL    string
	serviceKey string
	client     *http.Client
	logger     core.Logger
}

var _ library.Repository = (*LibraryRepository)(nil) // interface compliance check

func NewLibraryRepository(conf *core.Config, logger core.Logger) *LibraryRepository {
	return &LibraryRepository{
		baseURL:    strings.TrimRight(conf.Rest.URL, "/"),
		serviceKey: conf.Rest.ServiceKey,
		client:     &http.Client{Timeout: conf.Rest.Timeout},
		logger:     logger,
	}
}

func eq(value string) string { return "eq." + value }

// do sends a request to /<table> and decodes the JSON response into dest (if not nil).
func (repo *LibraryRepository) do(
	ctx context.Context,
	method rest.Method,
	table string,
	params map[string]string,
	body interface{},
	prefer string,
	dest interface{},
) error {
	req := rest.Request{
		Method:  method,
		BaseURL: repo.baseURL + "/" + table,
		Headers: map[string]string{
			"apikey":        repo.serviceKey,
			"Authorization": "Bearer " + repo.serviceKey,
			"Accept":        "application/json",
		},
		QueryParams: params,
	}
	if prefer != "" {
		req.Headers["Prefer"] = prefer
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = b
		req.Headers["Content-Type"] = "application/json"
	}

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	httpRes, err := repo.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, table)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return errors.Wrapf(err, "reading %s %s response", method, table)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: res.StatusCode, Body: res.Body}
		if res.StatusCode == http.StatusUnauthorized {
			// every request will fail alike until the key is rotated
			return errors.Wrapf(core.NewShutdownError(apiErr, "service key rejected"), "%s %s", method, table)
		}
		return errors.Wrapf(apiErr, "%s %s", method, table)
	}

	if dest != nil {
		if err = json.Unmarshal([]byte(res.Body), dest); err != nil {
			return errors.Wrapf(err, "decoding %s response", table)
		}
	}
	return nil
}

func (repo *LibraryRepository) QueryActiveBorrowings(ctx context.Context) ([]library.Borrowing, error) {
	var rows []borrowingRow
	err := repo.do(ctx, rest.Get, "book_borrowings", map[string]string{
		"select": "id,book_id,student_id,due_date,borrowed_at,status,books(name,code)",
		"status": eq(string(library.StatusBorrowed)),
		"order":  "due_date.asc,id.asc",
	}, nil, "", &rows)
	if err != nil {
		return nil, errors.Wrap(err, "selecting borrowings")
	}

	// a malformed row only loses its own loan
	borrowings := make([]library.Borrowing, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBorrowing()
		if err != nil {
			repo.logger.Warn(fmt.Sprintf("skipping borrowing row: %v", err), err)
			continue
		}
		borrowings = append(borrowings, b)
	}
	return borrowings, nil
}

func (repo *LibraryRepository) GetStudent(ctx context.Context, id string) (library.Student, error) {
	var rows []studentRow
	err := repo.do(ctx, rest.Get, "students", map[string]string{
		"select": "id,user_id,roll_number",
		"id":     eq(id),
	}, nil, "", &rows)
	if err != nil {
		return library.Student{}, errors.Wrap(err, "getting student")
	}
	if len(rows) == 0 {
		return library.Student{}, errors.Wrap(library.ErrNotFound, "getting student")
	}
	r := rows[0]
	return library.Student{ID: r.ID, UserID: r.UserID, RollNumber: r.RollNumber.String}, nil
}

func (repo *LibraryRepository) GetProfile(ctx context.Context, userID string) (library.Profile, error) {
	var rows []profileRow
	err := repo.do(ctx, rest.Get, "profiles", map[string]string{
		"select":  "user_id,email,name",
		"user_id": eq(userID),
	}, nil, "", &rows)
	if err != nil {
		return library.Profile{}, errors.Wrap(err, "getting profile")
	}
	if len(rows) == 0 {
		return library.Profile{}, errors.Wrap(library.ErrNotFound, "getting profile")
	}
	r := rows[0]
	return library.Profile{UserID: r.UserID, Email: r.Email.String, Name: r.Name.String}, nil
}

// CreateNotifications posts all notes in one bulk insert, which the API runs in a single transaction.
func (repo *LibraryRepository) CreateNotifications(ctx context.Context, notes []library.Notification) (int, error) {
	if len(notes) == 0 {
		return 0, nil
	}

	rows := make([]notificationRow, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, notificationRow{
			ID:        n.ID,
			UserID:    n.UserID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Priority:  n.Priority,
			ActionURL: null.NewString(n.ActionURL, n.ActionURL != ""),
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	if err := repo.do(ctx, rest.Post, "notifications", nil, rows, "return=minimal", nil); err != nil {
		return 0, errors.Wrap(err, "inserting notifications")
	}
	return len(notes), nil
}

func (repo *LibraryRepository) QueryNotifications(ctx context.Context, userID string) ([]library.Notification, error) {
	var rows []notificationRow
	err := repo.do(ctx, rest.Get, "notifications", map[string]string{
		"select":  "*",
		"user_id": eq(userID),
		"order":   "created_at.desc,id.asc",
	}, nil, "", &rows)
	if err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}

	notes := make([]library.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (repo *LibraryRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	var rows []struct {
		ID string `json:"id"`
	}
	err := repo.do(ctx, rest.Patch, "notifications", map[string]string{
		"select":  "id",
		"id":      eq(id),
		"user_id": eq(userID),
	}, map[string]bool{"is_read": true}, "return=representation", &rows)
	if err != nil {
		return errors.Wrap(err, "updating notification")
	}
	if len(rows) == 0 {
		return library.ErrNotFound
	}
	return nil
}
