package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/core/user"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) } // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer

	// set up on demand, see setup()
	migrator   migrator
	librarySvc *library.Service
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command (up, down, status, ...) on the database")
	_, _ = fmt.Fprintln(cli.out, "  notify [-dry-run] [-timeout 5m]                 - run the library notifications once")
	_, _ = fmt.Fprintln(cli.out, "  token -subject ID [-role ROLE] [-ttl DURATION] - mint an API access token (eg. for the scheduler)")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "notify":
		notifyCmd := cli.newFlagSet("notify")
		dryRun := notifyCmd.Bool("dry-run", false, "Classify the loans and list who would be notified, without sending anything.")
		timeout := notifyCmd.Duration("timeout", 5*time.Minute, "Abort the run after this long.")
		if err := notifyCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.notify(*dryRun, *timeout)

	case "token":
		tokenCmd := cli.newFlagSet("token")
		subject := tokenCmd.String("subject", "", "The token subject: a user or service account ID.")
		role := tokenCmd.String("role", user.RoleServiceScheduler, "The role granted by the token.")
		ttl := tokenCmd.Duration("ttl", 0, "How long the token is valid (default: the configured JWT expiration delta).")
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *subject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*subject, *role, *ttl)

	default:
		cli.printUsage()
		return errHelp
	}
}
