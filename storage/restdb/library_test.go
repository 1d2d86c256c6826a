package restdb

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	logsvc "github.com/trezcool/schoolerp/services/logger"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   string
}

func newTestRepo(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*LibraryRepository, *[]recordedRequest) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		q := make(map[string]string)
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, query: q, header: r.Header.Clone(), body: string(body)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	conf := &core.Config{Debug: true}
	conf.Rest.URL = srv.URL + "/rest/v1/"
	conf.Rest.ServiceKey = "service-key"
	conf.Rest.Timeout = 5 * time.Second
	return NewLibraryRepository(conf, logsvc.NewDiscard(conf)), &reqs
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestLibraryRepository_QueryActiveBorrowings(t *testing.T) {
	repo, reqs := newTestRepo(t, reply(http.StatusOK, `[
		{"id":"l1","book_id":"b1","student_id":"s1","due_date":"2024-03-10","borrowed_at":"2024-02-25T09:30:00","status":"BORROWED","books":{"name":"Dune","code":"SF-001"}},
		{"id":"l2","book_id":"b2","student_id":"s2","due_date":"2024-03-12","borrowed_at":"2024-02-27T09:30:00+00:00","status":"BORROWED","books":{"name":"Emma","code":"CL-002"}}
	]`))

	borrowings, err := repo.QueryActiveBorrowings(context.Background())
	require.NoError(t, err)
	require.Len(t, borrowings, 2)

	assert.Equal(t, library.Borrowing{
		ID:         "l1",
		BookID:     "b1",
		StudentID:  "s1",
		DueDate:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		BorrowedAt: time.Date(2024, 2, 25, 9, 30, 0, 0, time.UTC),
		Status:     library.StatusBorrowed,
		Book:       library.Book{ID: "b1", Name: "Dune", Code: "SF-001"},
	}, borrowings[0])
	assert.True(t, borrowings[1].BorrowedAt.Equal(time.Date(2024, 2, 27, 9, 30, 0, 0, time.UTC)))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/rest/v1/book_borrowings", req.path)
	assert.Equal(t, "eq.BORROWED", req.query["status"])
	assert.Contains(t, req.query["select"], "books(name,code)")
	assert.Equal(t, "service-key", req.header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", req.header.Get("Authorization"))
}

func TestLibraryRepository_QueryActiveBorrowings_badRows(t *testing.T) {
	repo, _ := newTestRepo(t, reply(http.StatusOK, `[
		{"id":"l1","book_id":"b1","student_id":"s1","due_date":"10/03/2024","status":"BORROWED","books":{"name":"Dune","code":"SF-001"}},
		{"id":"l2","book_id":"b2","student_id":"s2","due_date":"2024-03-12","borrowed_at":"yesterday","status":"BORROWED","books":{"name":"Emma","code":"CL-002"}},
		{"id":"l3","book_id":"b3","student_id":"s3","due_date":"2024-03-14","status":"BORROWED","books":{"name":"Ulysses","code":"CL-003"}}
	]`))
	logs := new(bytes.Buffer)
	repo.logger = logsvc.NewWithOutput(logs, "DB", &core.Config{Debug: true})

	borrowings, err := repo.QueryActiveBorrowings(context.Background())
	require.NoError(t, err)
	require.Len(t, borrowings, 1)
	assert.Equal(t, "l3", borrowings[0].ID)
	assert.True(t, borrowings[0].BorrowedAt.IsZero())
	assert.Contains(t, logs.String(), "borrowing l1 due_date")
	assert.Contains(t, logs.String(), "borrowing l2 borrowed_at")
}

func TestLibraryRepository_QueryActiveBorrowings_errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantShutdown bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"message":"boom"}`},
		{name: "forbidden", status: http.StatusForbidden, body: `{"message":"permission denied for table book_borrowings"}`},
		{name: "service key rejected", status: http.StatusUnauthorized, body: `{"message":"JWT expired"}`, wantShutdown: true},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(t, reply(tt.status, tt.body))
			_, err := repo.QueryActiveBorrowings(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantShutdown, core.IsShutdown(err))
			if tt.status >= http.StatusBadRequest {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr), "%T", errors.Cause(err))
				assert.Equal(t, tt.status, apiErr.StatusCode)
			}
		})
	}
}

func TestLibraryRepository_GetStudentAndProfile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "found", body: `[{"id":"s1","user_id":"u1","roll_number":null,"email":"ann@school.test","name":null}]`},
		{name: "not found", body: `[]`, wantErr: library.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, reqs := newTestRepo(t, reply(http.StatusOK, tt.body))
			ctx := context.Background()

			student, sErr := repo.GetStudent(ctx, "s1")
			profile, pErr := repo.GetProfile(ctx, "u1")
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(sErr))
				assert.Equal(t, tt.wantErr, errors.Cause(pErr))
				return
			}
			require.NoError(t, sErr)
			require.NoError(t, pErr)
			assert.Equal(t, library.Student{ID: "s1", UserID: "u1"}, student)
			assert.Equal(t, library.Profile{UserID: "u1", Email: "ann@school.test"}, profile)

			assert.Equal(t, "eq.s1", (*reqs)[0].query["id"])
			assert.Equal(t, "/rest/v1/profiles", (*reqs)[1].path)
			assert.Equal(t, "eq.u1", (*reqs)[1].query["user_id"])
		})
	}
}

func TestLibraryRepository_CreateNotifications(t *testing.T) {
	repo, reqs := newTestRepo(t, reply(http.StatusCreated, ``))
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	created, err := repo.CreateNotifications(context.Background(), []library.Notification{
		{ID: "n1", UserID: "u1", Title: "t1", Message: "m1", Type: library.NotificationTypeLibrary, Priority: library.PriorityHigh, ActionURL: "/library", CreatedAt: now},
		{ID: "n2", UserID: "u2", Title: "t2", Message: "m2", Type: library.NotificationTypeLibrary, Priority: library.PriorityNormal, CreatedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	require.Len(t, *reqs, 1, "one bulk insert")
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/rest/v1/notifications", req.path)
	assert.Equal(t, "return=minimal", req.header.Get("Prefer"))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.body), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "/library", rows[0]["action_url"])
	assert.Nil(t, rows[1]["action_url"])
	assert.Equal(t, "2024-03-10T08:00:00Z", rows[0]["created_at"])

	created, err = repo.CreateNotifications(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, *reqs, 1, "nothing to insert")
}

func TestLibraryRepository_CreateNotifications_error(t *testing.T) {
	repo, _ := newTestRepo(t, reply(http.StatusConflict, `{"code":"23505"}`))
	created, err := repo.CreateNotifications(context.Background(), []library.Notification{{ID: "n1", CreatedAt: time.Now()}})
	assert.Error(t, err)
	assert.Zero(t, created)
}

func TestLibraryRepository_QueryNotifications(t *testing.T) {
	repo, reqs := newTestRepo(t, reply(http.StatusOK, `[
		{"id":"n2","user_id":"u1","title":"t2","message":"m2","type":"library","priority":"normal","action_url":null,"is_read":false,"created_at":"2024-03-10T09:00:00+00:00"},
		{"id":"n1","user_id":"u1","title":"t1","message":"m1","type":"library","priority":"high","action_url":"/library","is_read":true,"created_at":"2024-03-10T08:00:00.123456"}
	]`))

	notes, err := repo.QueryNotifications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "n2", notes[0].ID)
	assert.Empty(t, notes[0].ActionURL)
	assert.Equal(t, "/library", notes[1].ActionURL)
	assert.True(t, notes[1].IsRead)
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 123456000, time.UTC), notes[1].CreatedAt)

	assert.Equal(t, "created_at.desc,id.asc", (*reqs)[0].query["order"])
}

func TestLibraryRepository_MarkNotificationRead(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "updated", body: `[{"id":"n1"}]`},
		{name: "not the user's", body: `[]`, wantErr: library.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, reqs := newTestRepo(t, reply(http.StatusOK, tt.body))

			err := repo.MarkNotificationRead(context.Background(), "u1", "n1")
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			} else {
				assert.NoError(t, err)
			}

			req := (*reqs)[0]
			assert.Equal(t, http.MethodPatch, req.method)
			assert.Equal(t, "eq.n1", req.query["id"])
			assert.Equal(t, "eq.u1", req.query["user_id"])
			assert.JSONEq(t, `{"is_read":true}`, req.body)
		})
	}
}
