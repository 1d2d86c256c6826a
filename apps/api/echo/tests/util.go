package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/schoolerp/apps/api/echo"
	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/core/user"
	emailsvc "github.com/trezcool/schoolerp/services/email"
	logsvc "github.com/trezcool/schoolerp/services/logger"
	inmemdb "github.com/trezcool/schoolerp/storage/database/inmem"
	testutil "github.com/trezcool/schoolerp/tests"
)

var (
	now = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type app struct {
	*Server
	conf    *core.Config
	repo    *inmemdb.LibraryRepository
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) app {
	conf := &core.Config{AppName: "School ERP", SecretKey: "secret", TestMode: true, FrontendBaseURL: "http://school.test"}
	conf.Server.DisableReqLogs = true
	conf.Server.AllowOrigins = []string{"*"}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Library.FeePerDay = decimal.NewFromInt(3)
	conf.Library.DueSoonDays = 2
	conf.Library.ActionURL = "/library"

	// set up DB & repos
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewLibraryRepository(db)
	testutil.SeedMemory(repo,
		testutil.Loan{ID: "l1", Student: "s1", Email: "ann@school.test", Name: "Ann", Book: "b1", DueDate: now.AddDate(0, 0, -3)},
		testutil.Loan{ID: "l2", Student: "s2", Email: "bob@school.test", Name: "Bob", Book: "b2", DueDate: now.AddDate(0, 0, -10)},
		testutil.Loan{ID: "l3", Student: "s3", Email: "cid@school.test", Name: "Cid", Book: "b3", DueDate: now.AddDate(0, 0, 1)},
		testutil.Loan{ID: "l4", Student: "s4", Email: "dee@school.test", Name: "Dee", Book: "b4", DueDate: now.AddDate(0, 0, 5)},
		testutil.Loan{ID: "l5", Student: "s1", Email: "ann@school.test", Name: "Ann", Book: "b5", DueDate: now.AddDate(0, 0, 14)},
	)

	// set up services
	logger := logsvc.NewDiscard(conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	translator := core.NewTranslator()
	validate := core.NewValidate(translator)
	librarySvc := library.NewService(library.Deps{
		Conf:       conf,
		Logger:     logger,
		Repo:       repo,
		MailSvc:    mailSvc,
		Validate:   validate,
		Translator: translator,
	})

	library.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { library.NowFunc = time.Now })

	// set up server
	srv := NewServer(&Deps{
		Conf:       conf,
		Logger:     logger,
		LibrarySvc: librarySvc,
		Validate:   validate,
		Translator: translator,
	})
	return app{Server: srv, conf: conf, repo: repo, mailSvc: mailSvc}
}

func (a app) token(t *testing.T, id string, roles ...string) string {
	token, err := user.GenerateToken(a.conf, user.User{ID: id, Roles: roles}, 0)
	require.NoError(t, err)
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshallObj()")
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
