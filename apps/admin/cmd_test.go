package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/core/user"
	emailsvc "github.com/trezcool/schoolerp/services/email"
	logsvc "github.com/trezcool/schoolerp/services/logger"
	inmemdb "github.com/trezcool/schoolerp/storage/database/inmem"
	testutil "github.com/trezcool/schoolerp/tests"
)

var now = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	cli     *commandLine
	out     *bytes.Buffer
	repo    *inmemdb.LibraryRepository
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) fixture {
	conf := &core.Config{AppName: "School ERP", SecretKey: "secret"}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Library.FeePerDay = decimal.NewFromInt(3)
	conf.Library.DueSoonDays = 2

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewLibraryRepository(db)
	testutil.SeedMemory(repo,
		testutil.Loan{ID: "l1", Student: "s1", Email: "ann@school.test", Book: "b1", DueDate: now.AddDate(0, 0, -3)},
		testutil.Loan{ID: "l2", Student: "s2", Email: "bob@school.test", Book: "b2", DueDate: now.AddDate(0, 0, 1)},
		testutil.Loan{ID: "l3", Student: "s3", Email: "cid@school.test", Book: "b3", DueDate: now.AddDate(0, 0, 9)},
	)

	logger := logsvc.NewDiscard(conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	translator := core.NewTranslator()
	svc := library.NewService(library.Deps{
		Conf:       conf,
		Logger:     logger,
		Repo:       repo,
		MailSvc:    mailSvc,
		Validate:   core.NewValidate(translator),
		Translator: translator,
	})

	library.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { library.NowFunc = time.Now })

	out := new(bytes.Buffer)
	cli := &commandLine{
		conf:       conf,
		logger:     logger,
		out:        out,
		migrator:   newMigrator(nil, "sqlite3"),
		librarySvc: svc,
	}
	return fixture{cli: cli, out: out, repo: repo, mailSvc: mailSvc}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	runCLITests(t, f.cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, f.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	runMigrationsFunc = func(db *sql.DB, engine, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}
	defer func() { runMigrationsFunc = origRunMigrations }()

	runCLITests(t, f.cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	})
}

func Test_commandLine_migrate_sqlite(t *testing.T) {
	f := setup(t)
	db := testutil.NewSQLiteDB(t) // migrated up
	f.cli.migrator = newMigrator(db.DB, "sqlite3")

	runCLITests(t, f.cli, []cliTest{
		{name: "down", args: []string{"migrate", "down"}},
		{name: "up again", args: []string{"migrate", "up"}},
		{name: "status", args: []string{"migrate", "status"}},
	})

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM notifications"))
	assert.Zero(t, count)
}

func Test_commandLine_notify(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		terminal   bool
		wantReport library.Report
		wantOut    []string
	}{
		{
			name:       "json",
			args:       []string{"notify"},
			wantReport: library.Report{Success: true, EmailsSent: 2, NotificationsCreated: 2},
		},
		{
			name:     "terminal",
			args:     []string{"notify", "-timeout", "1m"},
			terminal: true,
			wantOut:  []string{"emails sent:           2", "notifications created: 2"},
		},
		{
			name:     "terminal dry run",
			args:     []string{"notify", "-dry-run"},
			terminal: true,
			wantOut:  []string{"DRY RUN", "overdue  borrowing l1 -> ann@school.test (3 day(s), fee 9)", "due-soon borrowing l2", "emails sent:           0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			isTerminalFunc = func() bool { return tt.terminal }
			defer func() { isTerminalFunc = origIsTerminal }()

			require.NoError(t, f.cli.run(append([]string{"admin"}, tt.args...)))

			if !tt.terminal {
				var report library.Report
				require.NoError(t, json.Unmarshal(f.out.Bytes(), &report))
				assert.Equal(t, tt.wantReport, report)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, f.out.String(), want)
			}
		})
	}
}

func Test_commandLine_notify_failure(t *testing.T) {
	f := setup(t)
	f.repo.FailQueryBorrowings(fmt.Errorf("connection refused"))

	err := f.cli.run([]string{"admin", "notify"})
	assert.EqualError(t, err, "running library notifications: loading active borrowings: connection refused")
	assert.Empty(t, f.mailSvc.SentMessages())
}

func Test_commandLine_token(t *testing.T) {
	f := setup(t)

	runCLITests(t, f.cli, []cliTest{
		{name: "no subject", args: []string{"token"}, wantErr: errHelp},
		{name: "bad flag", args: []string{"token", "-lol"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"token", "-subject", "cron", "-role", "root"}, wantErrStr: "root: unknown role"},
	})

	f.out.Reset()
	require.NoError(t, f.cli.run([]string{"admin", "token", "-subject", "cron", "-ttl", "24h"}))
	claims, err := user.ParseToken(f.cli.conf, strings.TrimSpace(f.out.String()))
	require.NoError(t, err)
	assert.Equal(t, user.User{ID: "cron", Roles: []string{user.RoleServiceScheduler}}, claims.User())
	assert.Equal(t, claims.IssuedAt+24*3600, claims.ExpiresAt)
}

var (
	origRunMigrations = runMigrationsFunc
	origIsTerminal    = isTerminalFunc
)
